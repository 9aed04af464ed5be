package device

import "github.com/pithecene-io/devsync/protocol"

// BlockFunc is called after each block the device accepts, with the
// payload length of that block.
type BlockFunc func(n int)

// Upload issues "W:<path>" and streams content as acknowledged blocks,
// closing the file with end-of-file. Empty content opens and closes the
// file without sending a block.
//
// A block rejected with a bad checksum is resent unchanged. The file is
// abandoned with a *protocol.FileError when the device refuses to open it,
// reports a write failure, stops acknowledging, or keeps rejecting one block
// past the retry limit. The link is resynchronized before a FileError is
// returned, so the caller may continue with the next file.
func (c *Conn) Upload(path string, content []byte, onBlock BlockFunc) error {
	line, err := protocol.EncodePathCommand(protocol.CmdWrite, path)
	if err != nil {
		return err
	}
	if err := c.command("upload", protocol.CmdWrite, line); err != nil {
		return err
	}

	if err := c.openForWrite(path); err != nil {
		return err
	}

	var offset uint32
	for i, block := range protocol.SplitBlocks(content) {
		next, err := c.sendBlock(path, i, block, offset)
		if err != nil {
			return err
		}
		offset = next
		c.collector.AddBytesUploaded(block.Len())
		if onBlock != nil {
			onBlock(block.Len())
		}
	}

	if err := c.write("upload", []byte{protocol.EndOfFile}); err != nil {
		return err
	}
	if err := c.AwaitReady(); err != nil {
		return err
	}
	c.collector.IncFileUploaded()
	return nil
}

// openForWrite reads the open status and its reserved word. The reserved
// bytes carry nothing and are read tolerantly: firmware that sends only the
// status byte costs one ReadTimeout per file here, the same wait as a
// five-byte read on the original host tool.
func (c *Conn) openForWrite(path string) error {
	b, ok, err := c.readByte("upload")
	if err != nil {
		return err
	}
	if !ok {
		c.collector.IncTimeout()
		return protocol.TimeoutError("upload", "no open status for "+path)
	}
	status := protocol.DecodeStatus(b)
	if status == protocol.StatusUnrecognized {
		return c.violation("upload", "unexpected open status 0x%02X", b)
	}
	if _, err := c.read("upload", protocol.OffsetSize); err != nil {
		return err
	}
	if status == protocol.StatusFailed {
		return c.fileFailure("upload", path, protocol.ReasonOpenRefused, c.settle("upload"))
	}
	return nil
}

// sendBlock transmits one block until the device accepts it and returns
// the device offset reported with the acceptance.
func (c *Conn) sendBlock(path string, index int, block protocol.Block, prev uint32) (uint32, error) {
	frame := block.Frame()
	for resends := 0; ; resends++ {
		if err := c.write("upload", frame); err != nil {
			return 0, err
		}
		c.collector.IncBlockSent()
		if resends > 0 {
			c.collector.IncBlockRetried()
		}

		ack, ok, err := c.readAck()
		if err != nil {
			return 0, err
		}
		if !ok {
			c.collector.IncTimeout()
			c.collector.IncResync()
			return 0, c.fileFailureAt("upload", path, protocol.ReasonAckTimeout, prev, c.Interrupt())
		}

		switch ack.Status {
		case protocol.AckAccepted:
			// Only an acceptance promises a non-decreasing offset. A write
			// failure reports wherever the device stalled.
			if ack.Offset < prev {
				return 0, c.violation("upload", "device offset went back from %d to %d", prev, ack.Offset)
			}
			return ack.Offset, nil
		case protocol.AckWriteFailed:
			return 0, c.fileFailureAt("upload", path, protocol.ReasonWriteFailed, ack.Offset, c.settle("upload"))
		case protocol.AckChecksumRejected:
			c.logger.Debug("block rejected, resending", map[string]any{
				"path":    path,
				"block":   index,
				"resends": resends,
			})
			if c.blockRetries > 0 && resends >= c.blockRetries {
				c.collector.IncResync()
				return 0, c.fileFailureAt("upload", path, protocol.ReasonRetriesExhausted, prev, c.Interrupt())
			}
		}
	}
}

// readAck reads a status byte and its offset word. ok is false when either
// is missing.
func (c *Conn) readAck() (protocol.TransferOutcome, bool, error) {
	b, ok, err := c.readByte("upload")
	if err != nil || !ok {
		return protocol.TransferOutcome{}, false, err
	}
	status := protocol.DecodeAck(b)
	if status == protocol.AckUnrecognized {
		return protocol.TransferOutcome{}, false, c.violation("upload", "unexpected block status 0x%02X", b)
	}
	word, err := c.read("upload", protocol.OffsetSize)
	if err != nil {
		return protocol.TransferOutcome{}, false, err
	}
	if len(word) < protocol.OffsetSize {
		return protocol.TransferOutcome{}, false, nil
	}
	return protocol.TransferOutcome{Status: status, Offset: protocol.DecodeSize(word)}, true, nil
}
