package cmd

import (
	"github.com/urfave/cli/v2"
)

// Version is the devsync release version.
const Version = "0.3.0"

// VersionResponse is the output of the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It never opens a port.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := newReadOnlyRenderer(c, "version")
			if err != nil {
				return err
			}
			return r.Render(VersionResponse{Version: Version, Commit: commit})
		},
	}
}
