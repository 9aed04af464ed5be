// Package cmd provides the commands of the devsync binary.
package cmd

import (
	"github.com/urfave/cli/v2"
)

// Output flags shared by read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (list, stats, history only)",
	}
)

// ReadOnlyFlags returns the output flags. --tui is included everywhere so
// unsupported commands can reject it explicitly.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, TUIFlag}
}

// GlobalFlags returns the application-wide flags.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to YAML config file (default: ./devsync.yaml if present)",
			EnvVars: []string{"DEVSYNC_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log protocol detail (debug level)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: json or console",
			Value: "console",
		},
	}
}

// DeviceFlags returns the link and protocol flags of device commands.
// Each one overrides the matching config file value when set.
func DeviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "Serial port of the device, e.g. /dev/ttyUSB0 or COM3",
			EnvVars: []string{"DEVSYNC_DEVICE"},
		},
		&cli.IntFlag{
			Name:    "baud",
			Aliases: []string{"b"},
			Usage:   "Baud rate (default 115200)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-read timeout (default 10s)",
		},
		&cli.DurationFlag{
			Name:  "format-req-timeout",
			Usage: "Time allowed to confirm a reformat on the device (default 30s)",
		},
		&cli.DurationFlag{
			Name:  "format-timeout",
			Usage: "Time allowed for the reformat itself (default 60s)",
		},
		&cli.BoolFlag{
			Name:  "no-format",
			Usage: "Delete all files instead of reformatting",
		},
		&cli.IntFlag{
			Name:  "block-retries",
			Usage: "Resends of one rejected block before giving up on the file (0 = unlimited, default 8)",
		},
		&cli.StringFlag{
			Name:  "label",
			Usage: "Operator label for the unit, used in logs and records",
		},
	}
}

// SessionOutputFlags returns the flags for per-session side outputs.
func SessionOutputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON session report to this path (- for stderr)",
		},
		&cli.StringFlag{
			Name:  "records",
			Usage: "Record per-file outcomes to a directory or s3://bucket/prefix",
		},
		&cli.StringFlag{
			Name:  "notify-redis",
			Usage: "Publish a completion event to this Redis URL",
		},
		&cli.StringFlag{
			Name:  "notify-webhook",
			Usage: "POST a completion event to this URL",
		},
	}
}

func sessionFlags(extra ...cli.Flag) []cli.Flag {
	flags := append(DeviceFlags(), SessionOutputFlags()...)
	return append(flags, extra...)
}
