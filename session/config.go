package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/devsync/device"
	"github.com/pithecene-io/devsync/transport"
)

// Default timeouts, matching the device firmware's own windows.
const (
	DefaultReformatRequestTimeout = 30 * time.Second
	DefaultReformatTimeout        = 60 * time.Second
)

// ErrInvalidConfig is wrapped by every Config validation error.
var ErrInvalidConfig = errors.New("invalid session config")

// Config is the immutable configuration of one device session.
type Config struct {
	// Port is the serial port name, e.g. /dev/ttyUSB0 or COM3.
	Port     string
	BaudRate int
	// ReadTimeout bounds every single read from the device.
	ReadTimeout time.Duration
	// ReformatRequestTimeout is how long the operator has to answer a
	// reformat request on the device, beyond ReadTimeout.
	ReformatRequestTimeout time.Duration
	// ReformatTimeout is how long the format itself may take, beyond
	// ReadTimeout.
	ReformatTimeout time.Duration
	// NoReformat wipes files with a recursive delete instead of
	// requesting a reformat.
	NoReformat bool
	// BlockRetries bounds resends of one checksum-rejected block.
	// Zero means no limit.
	BlockRetries int
	// DeviceLabel names the unit in logs and stored records.
	DeviceLabel string
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		BaudRate:               transport.DefaultBaudRate,
		ReadTimeout:            transport.DefaultReadTimeout,
		ReformatRequestTimeout: DefaultReformatRequestTimeout,
		ReformatTimeout:        DefaultReformatTimeout,
		BlockRetries:           device.DefaultBlockRetries,
	}
}

// WithDefaults fills zero durations and baud rate. BlockRetries is left
// alone because zero is meaningful.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.BaudRate == 0 {
		c.BaudRate = d.BaudRate
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ReformatRequestTimeout == 0 {
		c.ReformatRequestTimeout = d.ReformatRequestTimeout
	}
	if c.ReformatTimeout == 0 {
		c.ReformatTimeout = d.ReformatTimeout
	}
	return c
}

// Validate checks the config. A port name is only required when the
// session opens the port itself.
func (c Config) Validate(requirePort bool) error {
	switch {
	case requirePort && c.Port == "":
		return fmt.Errorf("%w: port is required", ErrInvalidConfig)
	case c.BaudRate <= 0:
		return fmt.Errorf("%w: baud rate must be positive, got %d", ErrInvalidConfig, c.BaudRate)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("%w: read timeout must be positive, got %s", ErrInvalidConfig, c.ReadTimeout)
	case c.ReformatRequestTimeout < 0:
		return fmt.Errorf("%w: reformat request timeout must not be negative", ErrInvalidConfig)
	case c.ReformatTimeout < 0:
		return fmt.Errorf("%w: reformat timeout must not be negative", ErrInvalidConfig)
	case c.BlockRetries < 0:
		return fmt.Errorf("%w: block retries must not be negative, got %d", ErrInvalidConfig, c.BlockRetries)
	}
	return nil
}
