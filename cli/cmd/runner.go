package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/adapter"
	"github.com/pithecene-io/devsync/adapter/redis"
	"github.com/pithecene-io/devsync/adapter/webhook"
	"github.com/pithecene-io/devsync/iox"
	"github.com/pithecene-io/devsync/log"
	devlode "github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/metrics"
	"github.com/pithecene-io/devsync/protocol"
	"github.com/pithecene-io/devsync/session"
	"github.com/pithecene-io/devsync/transport"
)

// dialPort opens the serial link of a session. Tests swap in a simulated
// device.
var dialPort = func(cfg session.Config) (transport.Port, error) {
	return transport.Open(transport.Config{
		Name:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
}

// finishTimeout bounds report, records and notification delivery after the
// link has closed, including after SIGINT.
const finishTimeout = 30 * time.Second

// sessionRun is one device operation. It returns a transfer summary when
// the operation has one.
type sessionRun func(ctx context.Context, s *session.Session) (*session.PhaseSummary, error)

// sessionEnv carries what a command needs to prepare before the link opens.
type sessionEnv struct {
	Config    session.Config
	Outputs   outputSettings
	SessionID string
	Logger    *log.Logger
	Collector *metrics.Collector
	// Observer follows transfer progress; nil means none.
	Observer session.Observer
	// records is the parsed --records target, if any.
	records *devlode.Target
}

// newSessionEnv resolves config, flags and logging for one session.
// backend names the storage the operation writes to, for metrics; when
// empty the records backend is used.
func newSessionEnv(c *cli.Context, operation, backend string) (*sessionEnv, error) {
	file, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	cfg := sessionConfig(c, file)
	if err := cfg.Validate(true); err != nil {
		return nil, cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}

	env := &sessionEnv{
		Config:    cfg,
		Outputs:   resolveOutputs(c, file),
		SessionID: uuid.NewString(),
	}
	env.Logger, err = newLogger(c, log.SessionMeta{
		SessionID: env.SessionID,
		Port:      cfg.Port,
		Device:    cfg.DeviceLabel,
	})
	if err != nil {
		return nil, cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	env.Logger = env.Logger.With(map[string]any{"operation": operation})
	if env.Outputs.records != "" {
		target, err := devlode.ParseTarget(env.Outputs.records, env.Outputs.s3Options())
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid --records: %v", err), session.ExitCodeInvalidConfig)
		}
		env.records = &target
		if backend == "" {
			backend = target.Backend
		}
	}
	env.Collector = metrics.NewCollector(operation, cfg.Port, backend, env.SessionID)
	return env, nil
}

// runSession opens the link, runs the operation, closes the link and then
// delivers the report, records and notifications. The returned error
// carries the outcome's exit code.
func runSession(c *cli.Context, env *sessionEnv, operation string, run sessionRun) error {
	defer iox.DiscardErr(env.Logger.Sync)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	outputs, err := openOutputs(ctx, env)
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeInvalidConfig)
	}
	defer iox.DiscardErr(outputs.Close)

	firmware, summary, runErr := execute(ctx, env, run)
	report := session.BuildReport(env.SessionID, operation, env.Config, firmware, started,
		runErr, summary, env.Collector.Snapshot())

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	outputs.deliver(finishCtx, report, summary, env.Logger)

	if report.ExitCode == session.ExitCodeSuccess {
		return nil
	}
	env.Logger.Error("session ended", map[string]any{
		"outcome": string(report.Outcome),
		"error":   report.Message,
	})
	return cli.Exit(fmt.Sprintf("%s: %s", report.Outcome, report.Message), report.ExitCode)
}

func execute(ctx context.Context, env *sessionEnv, run sessionRun) (string, *session.PhaseSummary, error) {
	port, err := dialPort(env.Config)
	if err != nil {
		return "", nil, protocol.LinkError("open", err)
	}

	observer := env.Observer
	if observer == nil {
		observer = session.NopObserver{}
	}
	s, err := session.Open(env.Config,
		session.WithPort(port),
		session.WithLogger(env.Logger),
		session.WithCollector(env.Collector),
		session.WithObserver(observer),
	)
	if err != nil {
		iox.DiscardClose(port)
		return "", nil, err
	}

	var summary *session.PhaseSummary
	if _, err = s.VerifyLink(); err == nil {
		summary, err = run(ctx, s)
	}
	if cerr := s.Close(); cerr != nil {
		env.Logger.Warn("closing link", map[string]any{"error": cerr.Error()})
	}
	return s.Firmware(), summary, err
}

// sessionOutputs are the side outputs of one session.
type sessionOutputs struct {
	reportPath  string
	recordsPath string
	recorder    *devlode.Recorder
	adapters    []adapter.Adapter
	closers     iox.Stack
	day         string
}

func openOutputs(ctx context.Context, env *sessionEnv) (*sessionOutputs, error) {
	o := &sessionOutputs{
		reportPath:  env.Outputs.report,
		recordsPath: env.Outputs.records,
		day:         devlode.DeriveDay(time.Now()),
	}
	if env.records != nil {
		factory, err := env.records.Factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("records storage: %w", err)
		}
		o.recorder, err = devlode.NewRecorder(factory, devlode.RecordsConfig{
			Device:    env.Config.DeviceLabel,
			Day:       o.day,
			SessionID: env.SessionID,
		}, env.Collector)
		if err != nil {
			return nil, err
		}
		o.closers.Push(o.recorder)
	}

	notify := env.Outputs.notify
	retries := redis.DefaultRetries
	if notify.Retries != nil {
		retries = *notify.Retries
	}
	if env.Outputs.redis != "" {
		a, err := redis.New(redis.Config{
			URL:     env.Outputs.redis,
			Channel: notify.Channel,
			Timeout: notify.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			iox.DiscardErr(o.Close)
			return nil, err
		}
		o.adapters = append(o.adapters, a)
		o.closers.Push(a)
	}
	if env.Outputs.webhook != "" {
		a, err := webhook.New(webhook.Config{
			URL:     env.Outputs.webhook,
			Headers: notify.Headers,
			Timeout: notify.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			iox.DiscardErr(o.Close)
			return nil, err
		}
		o.adapters = append(o.adapters, a)
		o.closers.Push(a)
	}
	return o, nil
}

// Close releases the recorder and adapters.
func (o *sessionOutputs) Close() error {
	return o.closers.Close()
}

// deliver writes the report and records and publishes the completion
// event. Failures are logged; they never change the session outcome.
func (o *sessionOutputs) deliver(ctx context.Context, report *session.Report, summary *session.PhaseSummary, logger *log.Logger) {
	if o.reportPath != "" {
		if err := session.WriteReport(report, o.reportPath); err != nil {
			logger.Warn("report not written", map[string]any{"error": err.Error()})
		}
	}

	if o.recorder != nil {
		if err := o.recorder.WriteFiles(ctx, fileRecords(summary)); err != nil {
			logger.Warn("file records not written", map[string]any{"error": err.Error()})
		}
		completed := report.StartedAt.Add(time.Duration(report.DurationMs) * time.Millisecond)
		if err := o.recorder.WriteSession(ctx, devlode.SessionRecord{
			Operation:   report.Operation,
			Outcome:     string(report.Outcome),
			Port:        report.Port,
			Firmware:    report.Firmware,
			StartedAt:   report.StartedAt,
			CompletedAt: completed,
			Metrics:     *report.Metrics,
		}); err != nil {
			logger.Warn("session record not written", map[string]any{"error": err.Error()})
		}
	}

	if len(o.adapters) > 0 {
		if err := adapter.PublishAll(ctx, o.adapters, o.completedEvent(report)); err != nil {
			logger.Warn("notification failed", map[string]any{"error": err.Error()})
		}
	}
}

func (o *sessionOutputs) completedEvent(report *session.Report) *adapter.SessionCompletedEvent {
	event := &adapter.SessionCompletedEvent{
		SchemaVersion: adapter.SchemaVersion,
		EventType:     adapter.EventTypeSessionCompleted,
		SessionID:     report.SessionID,
		Operation:     report.Operation,
		Device:        report.Device,
		Port:          report.Port,
		Firmware:      report.Firmware,
		Outcome:       string(report.Outcome),
		Message:       report.Message,
		ExitCode:      report.ExitCode,
		Day:           o.day,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DurationMs:    report.DurationMs,
		RecordsPath:   o.recordsPath,
	}
	if report.Phase != nil {
		event.FilesAttempted = report.Phase.Attempted
		event.FilesSucceeded = report.Phase.Succeeded
		event.Bytes = report.Phase.Bytes
	}
	return event
}

func fileRecords(summary *session.PhaseSummary) []devlode.FileRecord {
	if summary == nil {
		return nil
	}
	records := make([]devlode.FileRecord, 0, len(summary.Results))
	for _, r := range summary.Results {
		rec := devlode.FileRecord{
			Op:   summary.Phase,
			Path: r.Path,
			Size: r.Size,
			OK:   r.Err == nil,
		}
		if r.Err != nil {
			rec.Reason = r.Err.Reason.String()
			rec.Offset = r.Err.Offset
			rec.Error = r.Err.Error()
		}
		records = append(records, rec)
	}
	return records
}
