// Package adapter defines the notification boundary for finished sessions.
//
// Adapters publish a SessionCompletedEvent to downstream systems once a
// CLI session has closed its link. Publishing never affects the session
// outcome or exit code.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the version of the SessionCompletedEvent shape.
const SchemaVersion = "1"

// EventTypeSessionCompleted is the only event type published.
const EventTypeSessionCompleted = "session_completed"

// SessionCompletedEvent is the payload published when a session ends.
type SessionCompletedEvent struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"` // always "session_completed"
	SessionID     string `json:"session_id"`
	Operation     string `json:"operation"`
	Device        string `json:"device,omitempty"`
	Port          string `json:"port"`
	Firmware      string `json:"firmware,omitempty"`
	Outcome       string `json:"outcome"` // success, partial, format_declined, ...
	Message       string `json:"message"`
	ExitCode      int    `json:"exit_code"`
	Day           string `json:"day"`
	Timestamp     string `json:"timestamp"` // RFC 3339
	DurationMs    int64  `json:"duration_ms"`

	FilesAttempted int    `json:"files_attempted"`
	FilesSucceeded int    `json:"files_succeeded"`
	Bytes          int64  `json:"bytes"`
	RecordsPath    string `json:"records_path,omitempty"`
}

// Adapter publishes session completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// DefaultBackoff is the delay before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// Retry calls attempt once plus up to retries more times with exponential
// backoff. An error for which permanent reports true stops immediately.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration,
	attempt func(context.Context) error, permanent func(error) bool,
) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(time.Duration(1<<uint(i-1)) * backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// PublishAll publishes event to every adapter and joins their errors.
func PublishAll(ctx context.Context, adapters []Adapter, event *SessionCompletedEvent) error {
	var errs []error
	for _, a := range adapters {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
