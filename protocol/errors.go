package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for session-fatal failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrLink indicates the transport failed to open, read or write.
	ErrLink = errors.New("link error")

	// ErrTimeout indicates no byte arrived within the deadline of a
	// top-level command.
	ErrTimeout = errors.New("timed out")

	// ErrProtocolViolation indicates a byte outside the closed set expected
	// in the current context: desync or firmware mismatch.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Sentinel errors for the format phase.
var (
	// ErrFormatDeclined indicates the user declined the reformat, or the
	// negotiation window elapsed without a decision.
	ErrFormatDeclined = errors.New("format declined")

	// ErrFormatFailed indicates the device reported a failed wipe or reformat.
	ErrFormatFailed = errors.New("format failed")
)

// Error is a session-fatal protocol error. Kind is one of ErrLink,
// ErrTimeout or ErrProtocolViolation.
type Error struct {
	Kind error
	// Op is the command or phase that failed (e.g. "list", "await_ready").
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// LinkError wraps a transport failure.
func LinkError(op string, err error) *Error {
	return &Error{Kind: ErrLink, Op: op, Err: err}
}

// TimeoutError reports a missing response.
func TimeoutError(op, msg string) *Error {
	return &Error{Kind: ErrTimeout, Op: op, Msg: msg}
}

// Violation reports an unexpected byte or malformed response.
func Violation(op, format string, args ...any) *Error {
	return &Error{Kind: ErrProtocolViolation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err ends the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLink) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProtocolViolation)
}

// Reason classifies a per-file failure.
type Reason int

const (
	// Download reasons.
	ReasonNotFound Reason = iota + 1
	ReasonCannotOpen
	ReasonChecksumMismatch
	ReasonIncomplete

	// Upload reasons.
	ReasonOpenRefused
	ReasonWriteFailed
	ReasonRetriesExhausted
	ReasonAckTimeout

	// ReasonStorage means the local side failed to read or store the file.
	ReasonStorage
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonCannotOpen:
		return "cannot_open"
	case ReasonChecksumMismatch:
		return "checksum_mismatch"
	case ReasonIncomplete:
		return "incomplete"
	case ReasonOpenRefused:
		return "open_refused"
	case ReasonWriteFailed:
		return "write_failed"
	case ReasonRetriesExhausted:
		return "retries_exhausted"
	case ReasonAckTimeout:
		return "ack_timeout"
	case ReasonStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// FileError is a per-file failure. It never ends a session; callers
// accumulate it and continue with the next file.
type FileError struct {
	// Op is "download", "upload" or "dump".
	Op     string
	Path   string
	Reason Reason
	// Offset is the device offset an upload stalled at, when known.
	Offset uint32
	Err    error
}

func (e *FileError) Error() string {
	s := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Reason)
	if e.Reason == ReasonWriteFailed || e.Reason == ReasonRetriesExhausted {
		s += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *FileError) Unwrap() error {
	return e.Err
}

// AsFileError returns the FileError in err's chain, if any.
func AsFileError(err error) (*FileError, bool) {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// FormatError reports a wipe or reformat that did not leave the device
// empty. Kind is ErrFormatDeclined or ErrFormatFailed.
type FormatError struct {
	Kind error
	// Mode is "wipe" or "reformat".
	Mode     string
	Decision Decision
}

func (e *FormatError) Error() string {
	if e.Mode == "reformat" && e.Kind == ErrFormatDeclined {
		return fmt.Sprintf("%s: %v (%s)", e.Mode, e.Kind, e.Decision)
	}
	return fmt.Sprintf("%s: %v", e.Mode, e.Kind)
}

// Is reports whether the error matches the target sentinel.
func (e *FormatError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}
