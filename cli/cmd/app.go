package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// NewApp assembles the devsync command tree. The caller installs the exit
// handling.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "devsync",
		Usage:   "Synchronize files with a device over its serial console",
		Version: fmt.Sprintf("%s (commit: %s)", Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			VerifyCommand(),
			StatsCommand(),
			ListCommand(),
			DumpCommand(),
			UploadCommand(),
			FormatCommand(),
			RemoveCommand(),
			PackCommand(),
			PortsCommand(),
			HistoryCommand(),
			VersionCommand(commit),
		},
	}
}
