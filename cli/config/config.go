package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/devsync/session"
)

// Config represents a devsync.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// DeviceConfig holds link and protocol defaults.
type DeviceConfig struct {
	Port                 string   `yaml:"port"`
	Baud                 int      `yaml:"baud"`
	Timeout              Duration `yaml:"timeout"`
	FormatRequestTimeout Duration `yaml:"format_request_timeout"`
	FormatTimeout        Duration `yaml:"format_timeout"`
	NoFormat             bool     `yaml:"no_format"`
	// BlockRetries is a pointer so an explicit 0 (unlimited) is distinct
	// from an omitted key.
	BlockRetries *int   `yaml:"block_retries,omitempty"`
	Label        string `yaml:"label"`
}

// StorageConfig holds dump and records storage defaults.
type StorageConfig struct {
	// Records is a directory or s3://bucket/prefix for session records.
	Records     string `yaml:"records"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// NotifyConfig holds notification adapter defaults.
type NotifyConfig struct {
	Redis   string            `yaml:"redis"`
	Channel string            `yaml:"channel,omitempty"`
	Webhook string            `yaml:"webhook"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "1m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// SessionConfig returns the session defaults the file describes. Zero
// values are left for session.Config.WithDefaults to fill.
func (c *Config) SessionConfig() session.Config {
	cfg := session.Config{
		Port:                   c.Device.Port,
		BaudRate:               c.Device.Baud,
		ReadTimeout:            c.Device.Timeout.Duration,
		ReformatRequestTimeout: c.Device.FormatRequestTimeout.Duration,
		ReformatTimeout:        c.Device.FormatTimeout.Duration,
		NoReformat:             c.Device.NoFormat,
		BlockRetries:           session.DefaultConfig().BlockRetries,
		DeviceLabel:            c.Device.Label,
	}
	if c.Device.BlockRetries != nil {
		cfg.BlockRetries = *c.Device.BlockRetries
	}
	return cfg
}
