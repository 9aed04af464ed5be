package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/devsync/device"
	"github.com/pithecene-io/devsync/metrics"
	"github.com/pithecene-io/devsync/protocol"
)

// Outcome is the terminal classification of one CLI session.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartial        Outcome = "partial"
	OutcomeFormatDeclined Outcome = "format_declined"
	OutcomeFormatFailed   Outcome = "format_failed"
	OutcomeLinkError      Outcome = "link_error"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeProtocolError  Outcome = "protocol_error"
	OutcomeInvalidConfig  Outcome = "invalid_config"
	OutcomeCanceled       Outcome = "canceled"
)

// Process exit codes.
const (
	ExitCodeSuccess       = 0 // everything transferred
	ExitCodeFileFailures  = 1 // session finished, some files failed
	ExitCodeFatal         = 2 // link, timeout or protocol error
	ExitCodeFormat        = 3 // format declined or failed
	ExitCodeInvalidConfig = 4 // bad flags, config or input
)

// ClassifyOutcome maps a session's final error and phase summary to an
// outcome and message. err takes precedence over per-file failures.
func ClassifyOutcome(err error, summary *PhaseSummary) (Outcome, string) {
	switch {
	case err == nil && summary.Failed():
		return OutcomePartial, fmt.Sprintf("%d of %d files failed", len(summary.Failures), summary.Attempted)
	case err == nil:
		return OutcomeSuccess, "completed"
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, protocol.ErrInvalidPath):
		return OutcomeInvalidConfig, err.Error()
	case errors.Is(err, device.ErrDeleteRefused):
		return OutcomePartial, err.Error()
	case errors.Is(err, protocol.ErrFormatDeclined):
		return OutcomeFormatDeclined, err.Error()
	case errors.Is(err, protocol.ErrFormatFailed):
		return OutcomeFormatFailed, err.Error()
	case errors.Is(err, protocol.ErrTimeout):
		return OutcomeTimeout, err.Error()
	case errors.Is(err, protocol.ErrProtocolViolation):
		return OutcomeProtocolError, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled, err.Error()
	default:
		// Link failures and anything unclassified (e.g. an unreadable
		// bundle) end the session the same way.
		return OutcomeLinkError, err.Error()
	}
}

// ExitCode returns the process exit code for an outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return ExitCodeSuccess
	case OutcomePartial:
		return ExitCodeFileFailures
	case OutcomeFormatDeclined, OutcomeFormatFailed:
		return ExitCodeFormat
	case OutcomeInvalidConfig:
		return ExitCodeInvalidConfig
	default:
		return ExitCodeFatal
	}
}

// ReportFailure is one per-file failure in a report.
type ReportFailure struct {
	Op     string `json:"op"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Offset uint32 `json:"offset,omitempty"`
	Error  string `json:"error"`
}

// ReportPhase holds the upload or dump counters in a report.
type ReportPhase struct {
	Name      string          `json:"name"`
	Attempted int             `json:"attempted"`
	Succeeded int             `json:"succeeded"`
	Bytes     int64           `json:"bytes"`
	Failures  []ReportFailure `json:"failures,omitempty"`
}

// Report is the structured JSON report written by --report.
type Report struct {
	SessionID  string            `json:"session_id"`
	Operation  string            `json:"operation"`
	Port       string            `json:"port"`
	Device     string            `json:"device,omitempty"`
	Firmware   string            `json:"firmware,omitempty"`
	Outcome    Outcome           `json:"outcome"`
	Message    string            `json:"message"`
	ExitCode   int               `json:"exit_code"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
	Phase      *ReportPhase      `json:"phase,omitempty"`
	Metrics    *metrics.Snapshot `json:"metrics"`
}

// BuildReport composes a Report. summary may be nil for operations without
// a transfer phase.
func BuildReport(sessionID, operation string, cfg Config, firmware string, started time.Time,
	err error, summary *PhaseSummary, snap metrics.Snapshot,
) *Report {
	outcome, msg := ClassifyOutcome(err, summary)
	r := &Report{
		SessionID:  sessionID,
		Operation:  operation,
		Port:       cfg.Port,
		Device:     cfg.DeviceLabel,
		Firmware:   firmware,
		Outcome:    outcome,
		Message:    msg,
		ExitCode:   outcome.ExitCode(),
		StartedAt:  started.UTC(),
		DurationMs: time.Since(started).Milliseconds(),
		Metrics:    &snap,
	}
	if summary != nil {
		r.Phase = &ReportPhase{
			Name:      summary.Phase,
			Attempted: summary.Attempted,
			Succeeded: summary.Succeeded,
			Bytes:     summary.Bytes,
		}
		for _, fe := range summary.Failures {
			r.Phase.Failures = append(r.Phase.Failures, ReportFailure{
				Op:     fe.Op,
				Path:   fe.Path,
				Reason: fe.Reason.String(),
				Offset: fe.Offset,
				Error:  fe.Error(),
			})
		}
	}
	return r
}

// WriteReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func writeReportTo(report *Report, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
