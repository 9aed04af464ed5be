// Command devsync syncs files with a serial-attached device.
//
// Usage:
//
//	devsync [global options] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: the session finished but some files failed
//   - 2: link failure, timeout, protocol violation or interrupt
//   - 3: reformat declined or failed
//   - 4: invalid configuration or arguments
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/cli/cmd"
	"github.com/pithecene-io/devsync/session"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Replaced in tests.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		// Only reached when exitErrHandler did not exit.
		exit(session.ExitCodeFatal)
	}
}

// exitErrHandler turns the error a command returned into a process exit.
// Commands report outcomes with cli.Exit; anything else is a usage error
// raised before a session started.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := session.ExitCodeInvalidConfig, "Error: "+err.Error()
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		code, msg = ec.ExitCode(), ec.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
	}
	if msg != "" {
		fmt.Fprintln(stderr, msg)
	}
	exit(code)
}
