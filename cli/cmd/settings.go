package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/devsync/cli/config"
	devlode "github.com/pithecene-io/devsync/lode"
	"github.com/pithecene-io/devsync/log"
	"github.com/pithecene-io/devsync/session"
)

// loadConfig reads --config, or ./devsync.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadOptional(c.String("config"))
}

// sessionConfig merges the config file with device flags. Flags win.
func sessionConfig(c *cli.Context, file *config.Config) session.Config {
	cfg := file.SessionConfig()
	if c.IsSet("device") {
		cfg.Port = c.String("device")
	}
	if c.IsSet("baud") {
		cfg.BaudRate = c.Int("baud")
	}
	if c.IsSet("timeout") {
		cfg.ReadTimeout = c.Duration("timeout")
	}
	if c.IsSet("format-req-timeout") {
		cfg.ReformatRequestTimeout = c.Duration("format-req-timeout")
	}
	if c.IsSet("format-timeout") {
		cfg.ReformatTimeout = c.Duration("format-timeout")
	}
	if c.IsSet("no-format") {
		cfg.NoReformat = c.Bool("no-format")
	}
	if c.IsSet("block-retries") {
		cfg.BlockRetries = c.Int("block-retries")
	}
	if c.IsSet("label") {
		cfg.DeviceLabel = c.String("label")
	}
	return cfg.WithDefaults()
}

// outputSettings is where a session's report, records and notifications go.
type outputSettings struct {
	report  string
	records string
	redis   string
	webhook string
	storage config.StorageConfig
	notify  config.NotifyConfig
}

func resolveOutputs(c *cli.Context, file *config.Config) outputSettings {
	out := outputSettings{
		report:  c.String("report"),
		records: file.Storage.Records,
		redis:   file.Notify.Redis,
		webhook: file.Notify.Webhook,
		storage: file.Storage,
		notify:  file.Notify,
	}
	if c.IsSet("records") {
		out.records = c.String("records")
	}
	if c.IsSet("notify-redis") {
		out.redis = c.String("notify-redis")
	}
	if c.IsSet("notify-webhook") {
		out.webhook = c.String("notify-webhook")
	}
	return out
}

func (o outputSettings) s3Options() devlode.S3Options {
	return devlode.S3Options{
		Region:       o.storage.Region,
		Endpoint:     o.storage.Endpoint,
		UsePathStyle: o.storage.S3PathStyle,
	}
}

func newLogger(c *cli.Context, meta log.SessionMeta) (*log.Logger, error) {
	level := "info"
	if c.Bool("verbose") {
		level = "debug"
	}
	return log.NewLoggerWithOptions(meta, log.Options{
		Output: c.App.ErrWriter,
		Format: c.String("log-format"),
		Level:  level,
	})
}
