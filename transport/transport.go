// Package transport provides the byte-level serial link to the device.
//
// A Port reads with a per-call timeout: Read returns (0, nil) when the
// timeout elapses before any byte arrives. The device protocol relies on
// that to detect a silent device without blocking forever.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Defaults match the device firmware's UART configuration.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 10 * time.Second
)

// Port is a serial channel with an adjustable read timeout.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout sets the timeout applied to each subsequent Read.
	SetReadTimeout(d time.Duration) error
}

// Drainer is implemented by ports that can wait for queued output to be
// transmitted. It is used to flush the link before closing.
type Drainer interface {
	Drain() error
}

// ErrPortRequired is returned when no port name was supplied.
var ErrPortRequired = errors.New("serial port name is required")

// Config describes how to open a serial port.
type Config struct {
	// Name is the OS port identifier (e.g. /dev/ttyUSB0, COM3).
	Name string
	// BaudRate defaults to 115200.
	BaudRate int
	// ReadTimeout is the per-read timeout (default 10s).
	ReadTimeout time.Duration
}

// Open opens the port in 8N1 mode and applies the read timeout.
func Open(cfg Config) (Port, error) {
	if cfg.Name == "" {
		return nil, ErrPortRequired
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(cfg.Name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Name, err)
	}

	// Discard anything left in the OS buffer by a previous session.
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", cfg.Name, err)
	}

	return port, nil
}

// Verify serial.Port satisfies Port and Drainer.
var (
	_ Port    = serial.Port(nil)
	_ Drainer = serial.Port(nil)
)
