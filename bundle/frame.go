package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// A bundle is a sequence of frames: a 4-byte big-endian payload length
// followed by a msgpack map whose "type" key says what it holds. The first
// frame is always the header.
const (
	LengthPrefixSize = 4
	MaxFrameSize     = 16 << 20
	MaxPayloadSize   = MaxFrameSize - LengthPrefixSize
)

// Frame types.
const (
	HeaderType = "bundle_header"
	FileType   = "file"
)

// FormatVersion is written into every header; readers reject others.
const FormatVersion = 1

// FrameErrorKind says what went wrong while reading a bundle.
type FrameErrorKind int

const (
	FrameErrorPartial  FrameErrorKind = iota // stream ended inside a frame
	FrameErrorTooLarge                       // length prefix over MaxPayloadSize
	FrameErrorDecode                         // payload is not the expected msgpack
	FrameErrorHeader                         // missing, foreign or newer header
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "truncated"
	case FrameErrorTooLarge:
		return "too large"
	case FrameErrorDecode:
		return "undecodable"
	case FrameErrorHeader:
		return "bad header"
	}
	return fmt.Sprintf("FrameErrorKind(%d)", int(k))
}

// FrameError reports a malformed bundle.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func frameErr(kind FrameErrorKind, cause error, format string, args ...any) *FrameError {
	return &FrameError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func (e *FrameError) Error() string {
	msg := "bundle " + e.Kind.String() + ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFrameError reports whether err carries a FrameError of kind.
func IsFrameError(err error, kind FrameErrorKind) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind == kind
}

type header struct {
	Type    string `msgpack:"type"`
	Version int    `msgpack:"version"`
	Created string `msgpack:"created,omitempty"`
}

type fileFrame struct {
	Type string `msgpack:"type"`
	Path string `msgpack:"path"`
	Data []byte `msgpack:"data"`
}

// frameReader splits a stream into frame payloads.
type frameReader struct {
	r      io.Reader
	prefix [LengthPrefixSize]byte
}

// next returns the following payload, or io.EOF exactly at a frame
// boundary.
func (fr *frameReader) next() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, frameErr(FrameErrorPartial, err, "reading length prefix")
	}
	n := binary.BigEndian.Uint32(fr.prefix[:])
	if n > MaxPayloadSize {
		return nil, frameErr(FrameErrorTooLarge, nil, "payload of %d bytes, limit %d", n, MaxPayloadSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, frameErr(FrameErrorPartial, err, "reading %d byte payload", n)
	}
	return payload, nil
}

// frameType decodes only the "type" key of a payload.
func frameType(payload []byte) (string, error) {
	var probe struct {
		Type string `msgpack:"type"`
	}
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return "", frameErr(FrameErrorDecode, err, "reading frame type")
	}
	return probe.Type, nil
}

func writeFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return frameErr(FrameErrorTooLarge, nil, "payload of %d bytes, limit %d", len(payload), MaxPayloadSize)
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}
