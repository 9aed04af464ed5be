// Package webhook delivers session_completed events to an HTTP endpoint.
//
// Each event is one JSON POST. Server errors and transport failures are
// retried; a 4xx answer means the endpoint rejected the event and is final.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/devsync/adapter"
	"github.com/pithecene-io/devsync/iox"
)

const (
	// DefaultTimeout bounds a single POST.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is how many times a failed POST is repeated.
	DefaultRetries = 3
)

// EventHeader names the event type on every request so receivers can
// route without parsing the body.
const EventHeader = "X-Devsync-Event"

// Config describes the endpoint.
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter posts events to Config.URL.
type Adapter struct {
	config Config
	client *http.Client
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook: URL is required")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("webhook: retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError reports a response outside 2xx.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: endpoint answered %d %s", e.Code, http.StatusText(e.Code))
}

// rejected reports whether err is a 4xx answer, which no retry can fix.
func rejected(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= http.StatusBadRequest && se.Code < http.StatusInternalServerError
}

// Publish posts event, retrying on transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: encode event: %w", err)
	}
	send := func(ctx context.Context) error {
		return a.send(ctx, event.EventType, payload)
	}
	return adapter.Retry(ctx, "webhook", a.config.Retries, a.config.Backoff, send, rejected)
}

func (a *Adapter) send(ctx context.Context, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, eventType)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops pooled connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
