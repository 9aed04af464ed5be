// Package redis announces finished sessions on a Redis pub/sub channel.
//
// Alongside the PUBLISH, the adapter keeps the latest event per device in a
// plain key (see Config.KeyPrefix) so late subscribers can catch up with a
// GET instead of waiting for the next session.
package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/devsync/adapter"
)

const (
	DefaultChannel   = "devsync:session_completed"
	DefaultKeyPrefix = "devsync:last:"
	DefaultTimeout   = 5 * time.Second
	DefaultRetries   = 3
	// DefaultLatestTTL is how long a device's latest event stays readable.
	DefaultLatestTTL = 7 * 24 * time.Hour
)

// Config describes the Redis target. URL uses the
// redis://[:password@]host:port[/db] form.
type Config struct {
	URL       string
	Channel   string
	KeyPrefix string
	LatestTTL time.Duration
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration
}

// Adapter publishes events and records the latest one per device.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New parses the URL and applies defaults. No connection is made until
// the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis: URL is required")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("redis: retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	cfg.Channel = cmp.Or(cfg.Channel, DefaultChannel)
	cfg.KeyPrefix = cmp.Or(cfg.KeyPrefix, DefaultKeyPrefix)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = DefaultLatestTTL
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// LatestKey is the key holding the most recent event for event's device,
// falling back to the port when no device label was given.
func (a *Adapter) LatestKey(event *adapter.SessionCompletedEvent) string {
	id := event.Device
	if id == "" {
		id = event.Port
	}
	return a.config.KeyPrefix + id
}

// Publish sends event to the channel and stores it under LatestKey in one
// pipelined round trip.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}
	key := a.LatestKey(event)

	return adapter.Retry(ctx, "redis", a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			p.Publish(ctx, a.config.Channel, payload)
			p.Set(ctx, key, payload, a.config.LatestTTL)
			return nil
		})
		return err
	}, nil)
}

// Close shuts the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
