package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/session"
	"github.com/pithecene-io/devsync/transport"
)

// listPorts enumerates host serial ports. Tests replace it.
var listPorts = transport.Ports

// PortsCommand returns the ports command.
func PortsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "List serial ports on this host",
		Flags: append(ReadOnlyFlags(), &cli.BoolFlag{
			Name:  "usb",
			Usage: "Only show USB serial adapters",
		}),
		Action: portsAction,
	}
}

func portsAction(c *cli.Context) error {
	r, err := newReadOnlyRenderer(c, "ports")
	if err != nil {
		return err
	}
	ports, err := listPorts()
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeFatal)
	}
	if c.Bool("usb") {
		usb := ports[:0]
		for _, p := range ports {
			if p.USB {
				usb = append(usb, p)
			}
		}
		ports = usb
	}
	return r.Render(ports)
}
