package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/devsync/adapter"
)

func testEvent() *adapter.SessionCompletedEvent {
	return &adapter.SessionCompletedEvent{
		SchemaVersion:  adapter.SchemaVersion,
		EventType:      adapter.EventTypeSessionCompleted,
		SessionID:      "3f2b9c1e-0000-4000-8000-000000000001",
		Operation:      "upload",
		Device:         "bench-1",
		Port:           "/dev/ttyUSB0",
		Outcome:        "partial",
		Message:        "1 of 12 files failed",
		ExitCode:       1,
		Day:            "2026-10-17",
		Timestamp:      "2026-10-17T09:30:00Z",
		DurationMs:     48200,
		FilesAttempted: 12,
		FilesSucceeded: 11,
		Bytes:          183_402,
	}
}

// asyncReceive reads one message in a goroutine. Must be called before
// Publish: miniredis delivers pub/sub messages synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{name: "default channel", want: DefaultChannel},
		{name: "custom channel", channel: "lab:flash", want: "lab:flash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: tt.channel})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer func() { _ = a.Close() }()

			sub := mr.NewSubscriber()
			sub.Subscribe(tt.want)
			ch := asyncReceive(sub)

			if err := a.Publish(t.Context(), testEvent()); err != nil {
				t.Fatalf("publish: %v", err)
			}

			msg := waitMessage(t, ch)
			if msg.Channel != tt.want {
				t.Errorf("channel = %q, want %q", msg.Channel, tt.want)
			}
			var received adapter.SessionCompletedEvent
			if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if received.EventType != adapter.EventTypeSessionCompleted || received.Outcome != "partial" {
				t.Errorf("received = %+v", received)
			}
			if received.FilesSucceeded != 11 || received.Device != "bench-1" {
				t.Errorf("received = %+v", received)
			}
		})
	}
}

func TestPublish_StoresLatest(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr(), KeyPrefix: "lab:last:", LatestTTL: time.Hour})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	first := testEvent()
	unlabeled := testEvent()
	unlabeled.Device = ""
	for _, ev := range []*adapter.SessionCompletedEvent{first, unlabeled} {
		if err := a.Publish(t.Context(), ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "lab:last:bench-1", want: "bench-1"},
		{key: "lab:last:/dev/ttyUSB0", want: ""},
	}
	for _, tt := range tests {
		raw, err := mr.Get(tt.key)
		if err != nil {
			t.Fatalf("get %s: %v", tt.key, err)
		}
		var got adapter.SessionCompletedEvent
		if err := json.Unmarshal([]byte(raw), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Device != tt.want || got.SessionID != first.SessionID {
			t.Errorf("%s = %+v", tt.key, got)
		}
		if ttl := mr.TTL(tt.key); ttl != time.Hour {
			t.Errorf("%s TTL = %v, want 1h", tt.key, ttl)
		}
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	a, err := New(Config{
		URL:     "redis://127.0.0.1:1",
		Retries: 2,
		Timeout: 100 * time.Millisecond,
		Backoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing URL", cfg: Config{}, wantErr: true},
		{name: "invalid URL", cfg: Config{URL: "not-a-redis-url"}, wantErr: true},
		{name: "negative retries", cfg: Config{URL: "redis://localhost:6379", Retries: -1}, wantErr: true},
		{name: "defaults", cfg: Config{URL: "redis://localhost:6379"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer func() { _ = a.Close() }()
			if a.config.Channel != DefaultChannel || a.config.KeyPrefix != DefaultKeyPrefix ||
				a.config.Timeout != DefaultTimeout || a.config.LatestTTL != DefaultLatestTTL {
				t.Errorf("defaults not applied: %+v", a.config)
			}
		})
	}
}

func TestClose_ClosesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after close")
	}
}
