package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/cli/tui"
	devlode "github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/session"
)

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show past sessions from a records dataset",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "records",
				Usage: "Records directory or s3://bucket/prefix (default: storage.records from config)",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Only sessions of this device label",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "Only this session ID",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Show at most this many sessions (0 = all)",
				Value: 20,
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := newReadOnlyRenderer(c, tui.ViewHistory)
	if err != nil {
		return err
	}
	file, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	outputs := resolveOutputs(c, file)
	if outputs.records == "" {
		return cli.Exit("history needs --records or storage.records in the config file", session.ExitCodeInvalidConfig)
	}
	target, err := devlode.ParseTarget(outputs.records, outputs.s3Options())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --records: %v", err), session.ExitCodeInvalidConfig)
	}
	factory, err := target.Factory(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("records storage: %v", err), session.ExitCodeInvalidConfig)
	}
	ds, err := devlode.NewDataset(factory)
	if err != nil {
		return cli.Exit(fmt.Sprintf("records dataset: %v", err), session.ExitCodeFatal)
	}

	records, err := devlode.QueryRecords(c.Context, ds, devlode.Filter{
		Device:    c.String("label"),
		SessionID: c.String("session"),
		Kind:      devlode.RecordKindSession,
	})
	if err != nil && !errors.Is(err, devlode.ErrNoRecordsFound) {
		return cli.Exit(err.Error(), session.ExitCodeFatal)
	}
	sessions := devlode.SessionSummaries(records)
	if limit := c.Int("limit"); limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	if sessions == nil {
		sessions = []devlode.SessionSummary{}
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewHistory, sessions)
	}
	return r.Render(sessions)
}
