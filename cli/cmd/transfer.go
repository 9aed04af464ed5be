package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/bundle"
	"github.com/pithecene-io/devsync/cli/progress"
	devlode "github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/session"
)

// UploadCommand returns the upload command.
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Empty the device, then write a directory tree or bundle file to it",
		Flags: sessionFlags(
			&cli.StringFlag{
				Name:     "fs",
				Usage:    "Directory or .bundle file to upload",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "no-wipe",
				Usage: "Upload over the existing files without emptying the device",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Hide the progress bar",
			},
		),
		Action: uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	src, err := bundle.Open(c.String("fs"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open %s: %v", c.String("fs"), err), session.ExitCodeInvalidConfig)
	}
	defer func() { _ = src.Close() }()

	env, err := newSessionEnv(c, "upload", "")
	if err != nil {
		return err
	}

	var bar *progress.Bar
	if !c.Bool("quiet") {
		var total int64
		if s, ok := src.(bundle.Sizer); ok {
			total = s.TotalSize()
		}
		bar = progress.New(c.App.ErrWriter, session.PhaseUpload, total)
		env.Observer = bar
	}

	noWipe := c.Bool("no-wipe")
	err = runSession(c, env, "upload", func(ctx context.Context, s *session.Session) (*session.PhaseSummary, error) {
		if noWipe {
			return s.UploadTree(ctx, src)
		}
		return s.Deploy(ctx, src)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	return err
}

// DumpCommand returns the dump command.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Download every file on the device",
		Flags: sessionFlags(
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Destination: a directory, s3://bucket/prefix, or a .bundle file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Hide the progress bar",
			},
		),
		Action: dumpAction,
	}
}

func dumpAction(c *cli.Context) error {
	out := c.String("out")

	if strings.HasSuffix(out, bundle.Extension) {
		env, err := newSessionEnv(c, "dump", "bundle")
		if err != nil {
			return err
		}
		w, err := bundle.Create(out)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot create %s: %v", out, err), session.ExitCodeInvalidConfig)
		}
		err = dumpInto(c, env, w)
		if cerr := w.Close(); cerr != nil && err == nil {
			return cli.Exit(fmt.Sprintf("bundle %s incomplete: %v", out, cerr), session.ExitCodeFileFailures)
		}
		return err
	}

	file, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	target, err := devlode.ParseTarget(out, resolveOutputs(c, file).s3Options())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --out: %v", err), session.ExitCodeInvalidConfig)
	}
	env, err := newSessionEnv(c, "dump", target.Backend)
	if err != nil {
		return err
	}
	factory, err := target.Factory(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("dump storage: %v", err), session.ExitCodeInvalidConfig)
	}
	return dumpInto(c, env, devlode.NewDumpStore(factory, "", env.Collector))
}

func dumpInto(c *cli.Context, env *sessionEnv, sink session.DumpSink) error {
	var bar *progress.Bar
	if !c.Bool("quiet") {
		bar = progress.New(c.App.ErrWriter, session.PhaseDump, 0)
		env.Observer = bar
	}
	err := runSession(c, env, "dump", func(ctx context.Context, s *session.Session) (*session.PhaseSummary, error) {
		return s.Dump(ctx, sink)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	return err
}

// PackCommand returns the pack command.
func PackCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Pack a directory tree into a .bundle file for upload",
		ArgsUsage: "DIR OUT" + bundle.Extension,
		Action:    packAction,
	}
}

func packAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("pack takes a directory and an output file", session.ExitCodeInvalidConfig)
	}
	dir, out := c.Args().Get(0), c.Args().Get(1)

	src, err := bundle.NewDirSource(dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read %s: %v", dir, err), session.ExitCodeInvalidConfig)
	}
	w, err := bundle.Create(out)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot create %s: %v", out, err), session.ExitCodeInvalidConfig)
	}
	if err := bundle.Pack(src, w); err != nil {
		_ = w.Close()
		return cli.Exit(fmt.Sprintf("pack %s: %v", dir, err), session.ExitCodeInvalidConfig)
	}
	if err := w.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("write %s: %v", out, err), session.ExitCodeInvalidConfig)
	}
	_, err = fmt.Fprintf(c.App.Writer, "packed %d files (%d bytes) into %s\n", w.Count(), src.TotalSize(), out)
	return err
}
