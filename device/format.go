package device

import (
	"time"

	"github.com/pithecene-io/devsync/protocol"
)

// Wipe deletes the root directory recursively. A refusal is reported as a
// *protocol.FormatError wrapping protocol.ErrFormatFailed.
func (c *Conn) Wipe() error {
	status, err := c.delete("wipe", protocol.RootPath)
	if err != nil {
		return err
	}
	if status == protocol.StatusFailed {
		return &protocol.FormatError{Kind: protocol.ErrFormatFailed, Mode: "wipe"}
	}
	return nil
}

// Reformat issues "Z" and waits for the operator's decision on the device.
// The decision window is requestTimeout past the normal read timeout; the
// format itself may take formatTimeout past it.
//
// A declined or unanswered request yields a *protocol.FormatError wrapping
// protocol.ErrFormatDeclined. After a timeout the device state is unknown
// and the caller is expected to close the session.
func (c *Conn) Reformat(requestTimeout, formatTimeout time.Duration) (protocol.Decision, error) {
	if err := c.command("reformat", protocol.CmdReformat, protocol.EncodeCommand(protocol.CmdReformat)); err != nil {
		return protocol.DecisionUnrecognized, err
	}

	b, ok, err := c.readWithin("reformat", requestTimeout+c.readTimeout)
	if err != nil {
		return protocol.DecisionUnrecognized, err
	}
	if !ok {
		c.collector.IncTimeout()
		return protocol.DecisionTimedOut, &protocol.FormatError{
			Kind:     protocol.ErrFormatDeclined,
			Mode:     "reformat",
			Decision: protocol.DecisionTimedOut,
		}
	}

	decision := protocol.DecodeDecision(b)
	switch decision {
	case protocol.DecisionUnrecognized:
		return decision, c.violation("reformat", "unexpected decision byte 0x%02X", b)
	case protocol.DecisionDeclined:
		if err := c.consumePrompt("reformat"); err != nil {
			return decision, err
		}
		return decision, &protocol.FormatError{
			Kind:     protocol.ErrFormatDeclined,
			Mode:     "reformat",
			Decision: decision,
		}
	}

	c.logger.Info("reformat confirmed on device, formatting", nil)
	b, ok, err = c.readWithin("reformat", formatTimeout+c.readTimeout)
	if err != nil {
		return decision, err
	}
	if !ok {
		c.collector.IncTimeout()
		return decision, protocol.TimeoutError("reformat", "no result from format")
	}
	switch protocol.DecodeStatus(b) {
	case protocol.StatusOK:
		return decision, c.AwaitReady()
	case protocol.StatusFailed:
		if err := c.consumePrompt("reformat"); err != nil {
			return decision, err
		}
		return decision, &protocol.FormatError{
			Kind:     protocol.ErrFormatFailed,
			Mode:     "reformat",
			Decision: decision,
		}
	default:
		return decision, c.violation("reformat", "unexpected format result 0x%02X", b)
	}
}

// consumePrompt reads a prompt the device may or may not send.
func (c *Conn) consumePrompt(op string) error {
	b, ok, err := c.readByte(op)
	if err != nil || !ok {
		return err
	}
	if b != protocol.Ready {
		return c.violation(op, "got 0x%02X, expected ready prompt 0x3E", b)
	}
	return nil
}
