// Package devicetest provides an in-memory device that speaks the file-sync
// protocol, for tests of the device and session packages.
//
// Device implements transport.Port. It is synchronous: each Write is
// processed immediately and any response is queued for Read. A Read with
// nothing queued returns 0 bytes and no error, the way a serial port
// reports an expired read timeout.
package devicetest

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/devsync/protocol"
)

// ErrClosed is returned by I/O on a closed Device.
var ErrClosed = errors.New("devicetest: port closed")

// ErrFixedTimeout is returned by SetReadTimeout when FixedTimeout is set.
var ErrFixedTimeout = errors.New("devicetest: read timeout is fixed")

// Frame is one block frame received by the device.
type Frame struct {
	Path     string
	Payload  []byte
	Checksum byte
}

type state int

const (
	stateIdle state = iota
	stateBlocks
	// stateStuck ignores everything but an interrupt.
	stateStuck
)

// Device is a simulated device filesystem behind a serial link.
type Device struct {
	mu sync.Mutex

	// Firmware is the line returned for "v".
	Firmware string
	// Total is the filesystem capacity reported by "I".
	Total uint32

	// Faults. Maps are keyed by device path; block indexes are zero-based.

	// ChecksumRejects answers the first N sends of every block of a path
	// with a checksum rejection.
	ChecksumRejects map[string]int
	// WriteFailAt reports a write failure for the given block.
	WriteFailAt map[string]int
	// DropAckAt leaves the given block unacknowledged.
	DropAckAt map[string]int
	// RegressAt reports offset zero for the given block, whether the block
	// is accepted or hits WriteFailAt.
	RegressAt map[string]int
	// OpenRefused refuses "W:" for the path.
	OpenRefused map[string]bool
	// CannotOpen answers "R:" with the cannot-open sentinel.
	CannotOpen map[string]bool
	// CorruptChecksum sends a wrong checksum for "R:".
	CorruptChecksum map[string]bool
	// TruncateAt sends only N content bytes for "R:" and then goes silent.
	TruncateAt map[string]int
	// Decision is the operator's answer to "Z". DecisionTimedOut stays
	// silent; DecisionUnrecognized sends a byte outside the decision set.
	Decision protocol.Decision
	// ReformatFails reports a failed format after confirmation.
	ReformatFails bool
	// WipeFails refuses "X:/".
	WipeFails bool
	// ListingOverride replaces the listing response with raw bytes.
	ListingOverride []byte
	// Prompt replaces the ready prompt byte when non-zero.
	Prompt byte
	// FixedTimeout makes SetReadTimeout fail.
	FixedTimeout bool
	// ReadChunk caps the bytes returned by one Read when positive.
	ReadChunk int

	// Recorded traffic.

	// Commands holds every command line received, without the newline.
	Commands []string
	Frames   []Frame
	// EOFs counts end-of-file markers received.
	EOFs int
	// Interrupts counts interrupt bytes received.
	Interrupts int
	// Overlaps counts commands received while a response was still unread.
	Overlaps int
	// Timeouts records every SetReadTimeout call.
	Timeouts []time.Duration
	Closed   bool

	files map[string][]byte
	order []string

	in    []byte
	out   []byte
	state state

	// upload in progress
	path    string
	data    []byte
	block   int
	rejects int
}

// New returns an empty device that confirms reformat requests.
func New() *Device {
	return &Device{
		Firmware: "devsim 1.0",
		Total:    1 << 20,
		Decision: protocol.DecisionConfirmed,
		files:    make(map[string][]byte),
	}
}

// Put stores a file on the device.
func (d *Device) Put(path string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(path, data)
}

// File returns the stored content of path.
func (d *Device) File(path string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[path]
	return b, ok
}

// Paths returns stored paths in listing order.
func (d *Device) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// CommandCount returns how many received command lines start with prefix.
func (d *Device) CommandCount(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Pending returns the number of queued response bytes not yet read.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.out)
}

// Read implements io.Reader.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Closed {
		return 0, ErrClosed
	}
	n := len(p)
	if d.ReadChunk > 0 && n > d.ReadChunk {
		n = d.ReadChunk
	}
	n = copy(p[:n], d.out)
	d.out = d.out[n:]
	return n, nil
}

// Write implements io.Writer.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Closed {
		return 0, ErrClosed
	}
	d.in = append(d.in, p...)
	d.process()
	return len(p), nil
}

// SetReadTimeout records t.
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FixedTimeout {
		return ErrFixedTimeout
	}
	d.Timeouts = append(d.Timeouts, t)
	return nil
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

func (d *Device) put(path string, data []byte) {
	if _, ok := d.files[path]; !ok {
		d.order = append(d.order, path)
	}
	d.files[path] = append([]byte(nil), data...)
}

func (d *Device) remove(match func(string) bool) int {
	kept := d.order[:0]
	removed := 0
	for _, p := range d.order {
		if match(p) {
			delete(d.files, p)
			removed++
			continue
		}
		kept = append(kept, p)
	}
	d.order = kept
	return removed
}

func (d *Device) emit(b ...byte) {
	d.out = append(d.out, b...)
}

func (d *Device) prompt() {
	if d.Prompt != 0 {
		d.emit(d.Prompt)
		return
	}
	d.emit(protocol.Ready)
}

func (d *Device) process() {
	for len(d.in) > 0 {
		switch d.state {
		case stateIdle:
			i := bytes.IndexByte(d.in, protocol.LineEnd)
			// An interrupt discards a partially received command line.
			if j := bytes.IndexByte(d.in, protocol.Interrupt); j >= 0 && (i < 0 || j < i) {
				d.in = d.in[j+1:]
				d.Interrupts++
				d.prompt()
				continue
			}
			if i < 0 {
				return
			}
			line := string(d.in[:i])
			d.in = d.in[i+1:]
			if len(d.out) > 0 {
				d.Overlaps++
			}
			d.Commands = append(d.Commands, line)
			d.handle(line)

		case stateBlocks:
			switch d.in[0] {
			case protocol.Interrupt:
				d.in = d.in[1:]
				d.Interrupts++
				d.state = stateIdle
				d.prompt()
			case protocol.EndOfFile:
				d.in = d.in[1:]
				d.EOFs++
				d.put(d.path, d.data)
				d.state = stateIdle
				d.prompt()
			case protocol.BlockMarker:
				if len(d.in) < 2 {
					return
				}
				n := protocol.ParseFrameHeader(d.in[1])
				if len(d.in) < n+3 {
					return
				}
				frame := d.in[:n+3]
				d.in = d.in[n+3:]
				d.handleBlock(frame)
			default:
				d.in = d.in[1:]
			}

		case stateStuck:
			if d.in[0] == protocol.Interrupt {
				d.Interrupts++
				d.state = stateIdle
				d.prompt()
			}
			d.in = d.in[1:]
		}
	}
}

func (d *Device) handle(line string) {
	cmd, path, _ := strings.Cut(line, ":")
	switch cmd {
	case protocol.CmdFirmwareInfo:
		d.emit([]byte(d.Firmware)...)
		d.emit(protocol.LineEnd)
		d.prompt()
	case protocol.CmdFSStats:
		var used uint32
		for _, b := range d.files {
			used += uint32(len(b))
		}
		d.emit(protocol.EncodeSize(d.Total)...)
		d.emit(protocol.EncodeSize(used)...)
		d.prompt()
	case protocol.CmdList:
		d.list()
	case protocol.CmdRead:
		d.read(path)
	case protocol.CmdDelete:
		d.delete(path)
	case protocol.CmdReformat:
		d.reformat()
	case protocol.CmdWrite:
		d.open(path)
	default:
		d.prompt()
	}
}

func (d *Device) list() {
	if d.ListingOverride != nil {
		d.emit(d.ListingOverride...)
		return
	}
	for _, p := range d.order {
		d.emit(protocol.EncodeSize(uint32(len(d.files[p])))...)
		d.emit([]byte(p)...)
		d.emit(0)
	}
	d.emit(protocol.EncodeSize(protocol.SizeTerminator)...)
	d.emit(0)
	d.prompt()
}

func (d *Device) read(path string) {
	content, ok := d.files[path]
	switch {
	case d.CannotOpen[path]:
		d.emit(protocol.EncodeSize(protocol.SizeCannotOpen)...)
		d.prompt()
		return
	case !ok:
		d.emit(protocol.EncodeSize(protocol.SizeNotFound)...)
		d.prompt()
		return
	}

	sizeBytes := protocol.EncodeSize(uint32(len(content)))
	d.emit(sizeBytes...)
	if n, ok := d.TruncateAt[path]; ok {
		d.emit(content[:min(n, len(content))]...)
		d.state = stateStuck
		return
	}
	d.emit(content...)
	sum := protocol.Checksum(sizeBytes, content)
	if d.CorruptChecksum[path] {
		sum++
	}
	d.emit(sum)
	d.prompt()
}

func (d *Device) delete(path string) {
	ok := protocol.StatusOK.Byte()
	fail := protocol.StatusFailed.Byte()

	if path == protocol.RootPath {
		if d.WipeFails {
			d.emit(fail)
		} else {
			d.remove(func(string) bool { return true })
			d.emit(ok)
		}
		d.prompt()
		return
	}

	dir := strings.TrimSuffix(path, "/") + "/"
	removed := d.remove(func(p string) bool {
		return p == path || strings.HasPrefix(p, dir)
	})
	if removed == 0 {
		d.emit(fail)
	} else {
		d.emit(ok)
	}
	d.prompt()
}

func (d *Device) reformat() {
	switch d.Decision {
	case protocol.DecisionTimedOut:
		return
	case protocol.DecisionDeclined:
		d.emit(protocol.DecisionDeclined.Byte())
		d.prompt()
		return
	case protocol.DecisionUnrecognized:
		d.emit('?')
		return
	}

	d.emit(protocol.DecisionConfirmed.Byte())
	if d.ReformatFails {
		d.emit(protocol.StatusFailed.Byte())
	} else {
		d.remove(func(string) bool { return true })
		d.emit(protocol.StatusOK.Byte())
	}
	d.prompt()
}

func (d *Device) open(path string) {
	if d.OpenRefused[path] {
		d.emit(protocol.StatusFailed.Byte(), 0, 0, 0, 0)
		d.prompt()
		return
	}
	d.emit(protocol.StatusOK.Byte(), 0, 0, 0, 0)
	d.path = path
	d.data = nil
	d.block = 0
	d.rejects = 0
	d.state = stateBlocks
}

func (d *Device) handleBlock(frame []byte) {
	payload := frame[2 : len(frame)-1]
	sum := frame[len(frame)-1]
	d.Frames = append(d.Frames, Frame{
		Path:     d.path,
		Payload:  append([]byte(nil), payload...),
		Checksum: sum,
	})

	if idx, ok := d.DropAckAt[d.path]; ok && idx == d.block {
		d.state = stateStuck
		return
	}
	if idx, ok := d.WriteFailAt[d.path]; ok && idx == d.block {
		d.ack(protocol.AckWriteFailed, d.offset())
		d.state = stateIdle
		d.prompt()
		return
	}
	if !protocol.Verify(sum, frame[:len(frame)-1]) || d.rejects < d.ChecksumRejects[d.path] {
		d.rejects++
		d.ack(protocol.AckChecksumRejected, uint32(len(d.data)))
		return
	}

	d.data = append(d.data, payload...)
	offset := d.offset()
	d.block++
	d.rejects = 0
	d.ack(protocol.AckAccepted, offset)
}

func (d *Device) offset() uint32 {
	if idx, ok := d.RegressAt[d.path]; ok && idx == d.block {
		return 0
	}
	return uint32(len(d.data))
}

func (d *Device) ack(status protocol.AckStatus, offset uint32) {
	d.emit(status.Byte())
	d.emit(protocol.EncodeSize(offset)...)
}
