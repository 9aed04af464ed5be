// Package device implements the client side of the device file-sync
// protocol over a transport.Port.
//
// A Conn issues one command at a time and consumes the device's ready
// prompt before returning, so the next command is never written while a
// previous one is still in flight. Conn is not safe for concurrent use;
// a session owns it exclusively.
//
// Errors follow the protocol package taxonomy: *protocol.Error for
// session-fatal conditions, *protocol.FileError for per-file failures and
// *protocol.FormatError for an unsuccessful wipe or reformat.
package device

import (
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/devsync/log"
	"github.com/pithecene-io/devsync/metrics"
	"github.com/pithecene-io/devsync/protocol"
	"github.com/pithecene-io/devsync/transport"
)

// DefaultBlockRetries bounds consecutive checksum rejections of one block.
const DefaultBlockRetries = 8

// readChunk caps a single transport read when receiving file content.
const readChunk = 4096

// Conn is a protocol connection over an open port.
type Conn struct {
	port         transport.Port
	readTimeout  time.Duration
	blockRetries int
	logger       *log.Logger
	collector    *metrics.Collector
}

// Option configures a Conn.
type Option func(*Conn)

// WithReadTimeout tells the Conn which per-read timeout the port was opened
// with. Long waits are derived from it.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) { c.readTimeout = d }
}

// WithBlockRetries sets how many times one block is resent after checksum
// rejections before the file is abandoned. Zero means no limit.
func WithBlockRetries(n int) Option {
	return func(c *Conn) { c.blockRetries = n }
}

// WithLogger sets the logger used for block-level debug output.
func WithLogger(l *log.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithCollector records wire traffic into c.
func WithCollector(m *metrics.Collector) Option {
	return func(c *Conn) { c.collector = m }
}

// NewConn wraps an open port.
func NewConn(port transport.Port, opts ...Option) *Conn {
	c := &Conn{
		port:         port,
		readTimeout:  transport.DefaultReadTimeout,
		blockRetries: DefaultBlockRetries,
		logger:       log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close flushes pending output where the port supports it, then closes it.
func (c *Conn) Close() error {
	if d, ok := c.port.(transport.Drainer); ok {
		_ = d.Drain()
	}
	return c.port.Close()
}

// --- byte level ---

func (c *Conn) write(op string, b []byte) error {
	for len(b) > 0 {
		n, err := c.port.Write(b)
		if err != nil {
			return protocol.LinkError(op, err)
		}
		if n == 0 {
			return protocol.LinkError(op, io.ErrShortWrite)
		}
		b = b[n:]
	}
	return nil
}

// command writes a command line and counts it.
func (c *Conn) command(op, cmd string, line []byte) error {
	c.collector.IncCommand(cmd)
	return c.write(op, line)
}

// read reads up to n bytes, stopping early when a read times out.
func (c *Conn) read(op string, n int) ([]byte, error) {
	buf := make([]byte, 0, min(n, readChunk))
	for len(buf) < n {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), min(n, 2*cap(buf)))
			copy(grown, buf)
			buf = grown
		}
		m, err := c.port.Read(buf[len(buf):cap(buf)])
		if err != nil {
			return buf, protocol.LinkError(op, err)
		}
		if m == 0 {
			break
		}
		buf = buf[:len(buf)+m]
	}
	return buf, nil
}

// readFull reads exactly n bytes or fails with a timeout.
func (c *Conn) readFull(op string, n int) ([]byte, error) {
	buf, err := c.read(op, n)
	if err != nil {
		return nil, err
	}
	if len(buf) < n {
		c.collector.IncTimeout()
		return nil, protocol.TimeoutError(op, shortRead(len(buf), n))
	}
	return buf, nil
}

// readByte reads one byte; ok is false when the read timed out.
func (c *Conn) readByte(op string) (b byte, ok bool, err error) {
	buf, err := c.read(op, 1)
	if err != nil || len(buf) == 0 {
		return 0, false, err
	}
	return buf[0], true, nil
}

// readUntil reads bytes up to and excluding delim.
func (c *Conn) readUntil(op string, delim byte) ([]byte, error) {
	var out []byte
	for {
		b, ok, err := c.readByte(op)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.collector.IncTimeout()
			return nil, protocol.TimeoutError(op, "missing terminator")
		}
		if b == delim {
			return out, nil
		}
		out = append(out, b)
	}
}

// readWithin waits up to window for one byte. It extends the port's
// native timeout for a single read; ports that cannot change their timeout
// fall back to repeated reads under a deadline.
func (c *Conn) readWithin(op string, window time.Duration) (byte, bool, error) {
	if err := c.port.SetReadTimeout(window); err == nil {
		b, ok, rerr := c.readByte(op)
		if err := c.port.SetReadTimeout(c.readTimeout); err != nil && rerr == nil {
			rerr = protocol.LinkError(op, err)
		}
		return b, ok, rerr
	}

	deadline := time.Now().Add(window)
	for {
		b, ok, err := c.readByte(op)
		if err != nil || ok {
			return b, ok, err
		}
		if !time.Now().Before(deadline) {
			return 0, false, nil
		}
	}
}

func (c *Conn) violation(op, format string, args ...any) error {
	c.collector.IncProtocolError()
	return protocol.Violation(op, format, args...)
}

// --- prompt synchronization ---

// AwaitReady consumes the ready prompt. No byte is a timeout; any other
// byte is a protocol violation. Both are fatal.
func (c *Conn) AwaitReady() error {
	b, ok, err := c.readByte("await_ready")
	if err != nil {
		return err
	}
	if !ok {
		c.collector.IncTimeout()
		return protocol.TimeoutError("await_ready", "device did not become ready")
	}
	if b != protocol.Ready {
		return c.violation("await_ready", "got 0x%02X, expected ready prompt 0x3E", b)
	}
	return nil
}

// Interrupt aborts any partially issued command and waits for the prompt.
func (c *Conn) Interrupt() error {
	if err := c.write("interrupt", []byte{protocol.Interrupt}); err != nil {
		return err
	}
	return c.AwaitReady()
}

// settle brings the device back to its prompt after an abandoned transfer.
// A prompt that is already on its way is consumed; silence is answered
// with an interrupt.
func (c *Conn) settle(op string) error {
	b, ok, err := c.readByte(op)
	if err != nil {
		return err
	}
	if ok {
		if b != protocol.Ready {
			return c.violation(op, "got 0x%02X while resynchronizing", b)
		}
		return nil
	}
	c.collector.IncResync()
	c.logger.Debug("resynchronizing with interrupt", map[string]any{"op": op})
	return c.Interrupt()
}

func shortRead(got, want int) string {
	return fmt.Sprintf("received %d of %d bytes", got, want)
}
