// Package protocol defines the device file-sync wire protocol.
//
// The device speaks a half-duplex command/response protocol over a serial
// link. Every command is an ASCII line terminated by '\n'; responses are
// typed per command and are always followed by the ready prompt (0x3E),
// except inside a block transfer where acknowledgments carry the flow.
//
// This package is a leaf: it holds wire constants, command encoding,
// status enumerations, block framing, the checksum codec and the error
// taxonomy. It performs no I/O.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Control bytes.
const (
	// Ready is the prompt the device emits when it accepts the next command.
	Ready byte = 0x3E
	// Interrupt aborts any partially issued command.
	Interrupt byte = 0x09
	// BlockMarker introduces a block frame during upload.
	BlockMarker byte = 0x42
	// EndOfFile terminates an upload after the last accepted block.
	EndOfFile byte = 0x46
	// LineEnd terminates command lines and the firmware info string.
	LineEnd byte = '\n'
)

// Size sentinels returned in place of a real 32-bit size.
const (
	// SizeTerminator ends a listing when paired with an empty path.
	// As the first word of a read response it means the path does not exist.
	SizeTerminator uint32 = 0xFFFFFFFF
	// SizeNotFound is the read response for a missing path.
	SizeNotFound uint32 = 0xFFFFFFFF
	// SizeCannotOpen and SizeCannotOpenAlt are read responses for a path
	// that exists but could not be opened.
	SizeCannotOpen    uint32 = 0xFFFFFFFE
	SizeCannotOpenAlt uint32 = 0xFFFFFFFD
)

// Block limits.
const (
	// MaxBlockSize is the largest payload a single block carries.
	MaxBlockSize = 256
	// OffsetSize is the width of the offset word in write acknowledgments.
	OffsetSize = 4
	// SizeWordSize is the width of every size word on the wire.
	SizeWordSize = 4
)

// Command letters.
const (
	CmdFirmwareInfo = "v"
	CmdFSStats      = "I"
	CmdList         = "L"
	CmdRead         = "R"
	CmdDelete       = "X"
	CmdReformat     = "Z"
	CmdWrite        = "W"
)

// RootPath is the filesystem root; deleting it wipes the device.
const RootPath = "/"

// ErrInvalidPath is returned when a path cannot be sent on the wire.
var ErrInvalidPath = errors.New("invalid device path")

// EncodeCommand returns the command line for a bare command.
func EncodeCommand(cmd string) []byte {
	return []byte(cmd + string(LineEnd))
}

// EncodePathCommand returns the command line for a command taking a path,
// e.g. "R:/routes/1\n".
func EncodePathCommand(cmd, path string) ([]byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return []byte(cmd + ":" + path + string(LineEnd)), nil
}

// ValidatePath checks that path is /-rooted ASCII without line or NUL bytes.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q is not /-rooted", ErrInvalidPath, path)
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == 0 || c == LineEnd || c == '\r' || c > 0x7F {
			return fmt.Errorf("%w: %q contains byte 0x%02X", ErrInvalidPath, path, c)
		}
	}
	return nil
}

// DecodeSize decodes a little-endian size word.
func DecodeSize(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// EncodeSize encodes a little-endian size word.
func EncodeSize(v uint32) []byte {
	var b [SizeWordSize]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// FileEntry is one listing entry.
type FileEntry struct {
	Path string `json:"path"`
	Size uint32 `json:"size"`
}

// FSStats is the filesystem usage reported by the "I" command.
type FSStats struct {
	Total uint32 `json:"total"`
	Used  uint32 `json:"used"`
}

// Free returns the unused byte count.
func (s FSStats) Free() uint32 {
	if s.Used > s.Total {
		return 0
	}
	return s.Total - s.Used
}
