package protocol

import "fmt"

// Raw status bytes. Each command context decodes them into its own closed
// enumeration; a byte outside that set decodes to the Unrecognized variant.
const (
	statusOK      byte = 0x40
	statusFail    byte = 0x58
	statusResend  byte = 0x21
	statusConfirm byte = 0x2E
)

// Status is the outcome of a delete, wipe, reformat or open-for-write
// command.
type Status int

const (
	StatusUnrecognized Status = iota
	StatusOK
	StatusFailed
)

// DecodeStatus decodes a delete / reformat-result / open status byte.
func DecodeStatus(b byte) Status {
	switch b {
	case statusOK:
		return StatusOK
	case statusFail:
		return StatusFailed
	default:
		return StatusUnrecognized
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	default:
		return "unrecognized"
	}
}

// AckStatus is the device's answer to one block frame.
type AckStatus int

const (
	AckUnrecognized AckStatus = iota
	// AckAccepted means the block was written and the offset advanced.
	AckAccepted
	// AckChecksumRejected means the frame failed validation; resend it as-is.
	AckChecksumRejected
	// AckWriteFailed means the device could not write; the file is abandoned.
	AckWriteFailed
)

// DecodeAck decodes a block acknowledgment status byte.
func DecodeAck(b byte) AckStatus {
	switch b {
	case statusOK:
		return AckAccepted
	case statusResend:
		return AckChecksumRejected
	case statusFail:
		return AckWriteFailed
	default:
		return AckUnrecognized
	}
}

func (a AckStatus) String() string {
	switch a {
	case AckAccepted:
		return "accepted"
	case AckChecksumRejected:
		return "checksum_rejected"
	case AckWriteFailed:
		return "write_failed"
	default:
		return "unrecognized"
	}
}

// Decision is the outcome of a reformat negotiation.
type Decision int

const (
	DecisionUnrecognized Decision = iota
	DecisionConfirmed
	DecisionDeclined
	// DecisionTimedOut means no decision byte arrived within the window.
	// It is treated as a decline.
	DecisionTimedOut
)

// DecodeDecision decodes a reformat decision byte.
func DecodeDecision(b byte) Decision {
	switch b {
	case statusConfirm:
		return DecisionConfirmed
	case statusFail:
		return DecisionDeclined
	default:
		return DecisionUnrecognized
	}
}

func (d Decision) String() string {
	switch d {
	case DecisionConfirmed:
		return "confirmed"
	case DecisionDeclined:
		return "declined"
	case DecisionTimedOut:
		return "timed_out"
	default:
		return "unrecognized"
	}
}

// TransferOutcome is the decoded acknowledgment of one block send.
type TransferOutcome struct {
	Status AckStatus
	// Offset is the device's file offset after the block.
	Offset uint32
}

// Byte returns the raw wire byte for a status value. It is the inverse of
// the Decode functions and is used by simulated devices.
func (s Status) Byte() byte {
	switch s {
	case StatusOK:
		return statusOK
	case StatusFailed:
		return statusFail
	default:
		panic(fmt.Sprintf("protocol: no wire byte for status %d", int(s)))
	}
}

// Byte returns the raw wire byte for an ack status.
func (a AckStatus) Byte() byte {
	switch a {
	case AckAccepted:
		return statusOK
	case AckChecksumRejected:
		return statusResend
	case AckWriteFailed:
		return statusFail
	default:
		panic(fmt.Sprintf("protocol: no wire byte for ack %d", int(a)))
	}
}

// Byte returns the raw wire byte for a decision.
func (d Decision) Byte() byte {
	switch d {
	case DecisionConfirmed:
		return statusConfirm
	case DecisionDeclined:
		return statusFail
	default:
		panic(fmt.Sprintf("protocol: no wire byte for decision %d", int(d)))
	}
}
