// Package session sequences device operations over one exclusively owned
// link.
//
// A Session opens the port, aborts any command a previous client left half
// written, and then runs one operation at a time: verification, listing,
// downloads, deletes, wipe or reformat, and whole-tree upload and dump
// phases. Per-file failures are collected into a PhaseSummary and never end
// the session. Any fatal error (link failure, timeout, protocol violation)
// closes the link before it is returned, and every later call returns
// ErrClosed.
package session

import (
	"errors"

	"github.com/pithecene-io/devsync/device"
	"github.com/pithecene-io/devsync/log"
	"github.com/pithecene-io/devsync/metrics"
	"github.com/pithecene-io/devsync/protocol"
	"github.com/pithecene-io/devsync/transport"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Session owns one device link.
type Session struct {
	cfg       Config
	conn      *device.Conn
	logger    *log.Logger
	collector *metrics.Collector
	observer  Observer

	firmware string
	closed   bool
	// failed records the fatal error that closed the session, if any.
	failed error
}

type options struct {
	port      transport.Port
	logger    *log.Logger
	collector *metrics.Collector
	observer  Observer
}

// Option configures Open.
type Option func(*options)

// WithPort uses an already open port instead of opening Config.Port.
func WithPort(p transport.Port) Option {
	return func(o *options) { o.port = p }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector records session metrics into c.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithObserver reports file and block progress to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Open opens the link and interrupts any command left in progress.
func Open(cfg Config, opts ...Option) (*Session, error) {
	o := options{logger: log.Nop(), observer: NopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(o.port == nil); err != nil {
		return nil, err
	}

	port := o.port
	if port == nil {
		p, err := transport.Open(transport.Config{
			Name:        cfg.Port,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.ReadTimeout,
		})
		if err != nil {
			return nil, protocol.LinkError("open", err)
		}
		port = p
	}

	s := &Session{
		cfg: cfg,
		conn: device.NewConn(port,
			device.WithReadTimeout(cfg.ReadTimeout),
			device.WithBlockRetries(cfg.BlockRetries),
			device.WithLogger(o.logger),
			device.WithCollector(o.collector),
		),
		logger:    o.logger,
		collector: o.collector,
		observer:  o.observer,
	}
	s.collector.IncSessionStarted()
	s.logger.Info("session opened", map[string]any{
		"port": cfg.Port,
		"baud": cfg.BaudRate,
	})

	if err := s.conn.Interrupt(); err != nil {
		return nil, s.fail(err)
	}
	return s, nil
}

// Firmware returns the firmware string read by VerifyLink, if any.
func (s *Session) Firmware() string { return s.firmware }

// Err returns the fatal error that closed the session, if any.
func (s *Session) Err() error { return s.failed }

// Close flushes and closes the link. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.failed == nil {
		s.collector.IncSessionCompleted()
	}
	s.logger.Info("session closed", nil)
	return s.conn.Close()
}

// fail closes the link when err is fatal and returns err unchanged.
func (s *Session) fail(err error) error {
	if err == nil || !protocol.IsFatal(err) {
		return err
	}
	if s.failed == nil {
		s.failed = err
		s.collector.IncSessionFailed()
		s.logger.Error("fatal device error", map[string]any{"error": err.Error()})
	}
	s.closeLink()
	return err
}

func (s *Session) closeLink() {
	if !s.closed {
		s.closed = true
		_ = s.conn.Close()
	}
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// VerifyLink reads the firmware information string.
func (s *Session) VerifyLink() (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	info, err := s.conn.FirmwareInfo()
	if err != nil {
		return "", s.fail(err)
	}
	s.firmware = info
	s.logger.Info("device firmware", map[string]any{"firmware": info})
	return info, nil
}

// Stats reads filesystem capacity and usage.
func (s *Session) Stats() (protocol.FSStats, error) {
	if err := s.check(); err != nil {
		return protocol.FSStats{}, err
	}
	stats, err := s.conn.FSStats()
	if err != nil {
		return protocol.FSStats{}, s.fail(err)
	}
	return stats, nil
}

// ListFiles returns the device listing in device order.
func (s *Session) ListFiles() ([]protocol.FileEntry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	entries, err := s.conn.List()
	if err != nil {
		return nil, s.fail(err)
	}
	return entries, nil
}

// DownloadFile reads one file. Per-file failures come back as
// *protocol.FileError with the session still open.
func (s *Session) DownloadFile(path string) ([]byte, uint32, error) {
	if err := s.check(); err != nil {
		return nil, 0, err
	}
	content, size, err := s.conn.Download(path)
	if err != nil {
		return nil, size, s.fail(err)
	}
	return content, size, nil
}

// Delete removes one path, recursively for directories.
func (s *Session) Delete(path string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.fail(s.conn.Delete(path))
}

// WipeOrReformat empties the device filesystem: a recursive delete of "/"
// when NoReformat is set, otherwise a reformat the operator confirms on the
// device. A declined reformat returns a *protocol.FormatError wrapping
// protocol.ErrFormatDeclined. When the request went unanswered, or the
// device confirmed and then reported a failed format, the device state is
// unknown and the session is closed as well.
func (s *Session) WipeOrReformat() error {
	if err := s.check(); err != nil {
		return err
	}

	if s.cfg.NoReformat {
		s.logger.Info("removing all files", nil)
		return s.fail(s.conn.Wipe())
	}

	s.logger.Info("reformat requested, confirm on the device", map[string]any{
		"window": (s.cfg.ReformatRequestTimeout + s.cfg.ReadTimeout).String(),
	})
	decision, err := s.conn.Reformat(s.cfg.ReformatRequestTimeout, s.cfg.ReformatTimeout)
	switch {
	case decision == protocol.DecisionTimedOut:
		s.logger.Warn("no reformat decision from device", nil)
		s.closeLink()
		return err
	case decision == protocol.DecisionConfirmed && errors.Is(err, protocol.ErrFormatFailed):
		// The filesystem is in an unknown state after a failed format.
		s.logger.Error("device reported reformat failure", nil)
		s.closeLink()
		return err
	case err != nil:
		return s.fail(err)
	}
	s.logger.Info("device reformatted", nil)
	return nil
}
