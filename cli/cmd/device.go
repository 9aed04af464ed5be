package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/cli/render"
	"github.com/pithecene-io/devsync/cli/tui"
	"github.com/pithecene-io/devsync/protocol"
	"github.com/pithecene-io/devsync/session"
)

// VerifyResponse is the output of the verify command.
type VerifyResponse struct {
	SessionID string `json:"session_id"`
	Port      string `json:"port"`
	Firmware  string `json:"firmware"`
}

// StatsResponse is the output of the stats command.
type StatsResponse struct {
	Port  string `json:"port"`
	Total uint32 `json:"total"`
	Used  uint32 `json:"used"`
	Free  uint32 `json:"free"`
}

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "Check the link and print the device firmware information",
		Flags:  sessionFlags(ReadOnlyFlags()...),
		Action: verifyAction,
	}
}

func verifyAction(c *cli.Context) error {
	r, err := newReadOnlyRenderer(c, "verify")
	if err != nil {
		return err
	}
	env, err := newSessionEnv(c, "verify", "")
	if err != nil {
		return err
	}

	var firmware string
	err = runSession(c, env, "verify", func(_ context.Context, s *session.Session) (*session.PhaseSummary, error) {
		firmware = s.Firmware()
		return nil, nil
	})
	if err != nil {
		return err
	}
	return r.Render(VerifyResponse{SessionID: env.SessionID, Port: env.Config.Port, Firmware: firmware})
}

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show device filesystem capacity and usage",
		Flags:  sessionFlags(ReadOnlyFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := newReadOnlyRenderer(c, tui.ViewStats)
	if err != nil {
		return err
	}
	env, err := newSessionEnv(c, "stats", "")
	if err != nil {
		return err
	}

	var stats protocol.FSStats
	err = runSession(c, env, "stats", func(_ context.Context, s *session.Session) (*session.PhaseSummary, error) {
		var err error
		stats, err = s.Stats()
		return nil, err
	})
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStats, stats)
	}
	return r.Render(StatsResponse{Port: env.Config.Port, Total: stats.Total, Used: stats.Used, Free: stats.Free()})
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List every file on the device with its size",
		Flags:   sessionFlags(ReadOnlyFlags()...),
		Action:  listAction,
	}
}

func listAction(c *cli.Context) error {
	r, err := newReadOnlyRenderer(c, tui.ViewFiles)
	if err != nil {
		return err
	}
	env, err := newSessionEnv(c, "list", "")
	if err != nil {
		return err
	}

	var entries []protocol.FileEntry
	err = runSession(c, env, "list", func(_ context.Context, s *session.Session) (*session.PhaseSummary, error) {
		var err error
		entries, err = s.ListFiles()
		return nil, err
	})
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []protocol.FileEntry{}
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewFiles, entries)
	}
	return r.Render(entries)
}

// RemoveCommand returns the rm command.
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a file or directory (recursively) from the device",
		ArgsUsage: "PATH",
		Flags:     sessionFlags(),
		Action:    removeAction,
	}
}

func removeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("rm takes exactly one device path", session.ExitCodeInvalidConfig)
	}
	path := c.Args().First()
	if err := protocol.ValidatePath(path); err != nil {
		return cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	env, err := newSessionEnv(c, "rm", "")
	if err != nil {
		return err
	}
	return runSession(c, env, "rm", func(_ context.Context, s *session.Session) (*session.PhaseSummary, error) {
		return nil, s.Delete(path)
	})
}

// FormatCommand returns the format command.
func FormatCommand() *cli.Command {
	return &cli.Command{
		Name:   "format",
		Usage:  "Empty the device: reformat (confirmed on the device) or delete everything with --no-format",
		Flags:  sessionFlags(),
		Action: formatAction,
	}
}

func formatAction(c *cli.Context) error {
	env, err := newSessionEnv(c, "format", "")
	if err != nil {
		return err
	}
	return runSession(c, env, "format", func(_ context.Context, s *session.Session) (*session.PhaseSummary, error) {
		return nil, s.WipeOrReformat()
	})
}

// newReadOnlyRenderer builds the renderer and rejects --tui for views
// without one.
func newReadOnlyRenderer(c *cli.Context, view string) (*render.Renderer, error) {
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	if c.Bool("tui") && !tui.IsTUISupported(view) {
		return nil, cli.Exit(fmt.Sprintf("--tui is not supported for %s", view), session.ExitCodeInvalidConfig)
	}
	return r, nil
}
