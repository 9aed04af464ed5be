package device

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/devsync/protocol"
)

// ErrDeleteRefused is returned when the device reports it could not delete
// a path.
var ErrDeleteRefused = errors.New("device refused delete")

// FirmwareInfo issues "v" and returns the firmware information line.
func (c *Conn) FirmwareInfo() (string, error) {
	if err := c.command("firmware_info", protocol.CmdFirmwareInfo, protocol.EncodeCommand(protocol.CmdFirmwareInfo)); err != nil {
		return "", err
	}
	line, err := c.readUntil("firmware_info", protocol.LineEnd)
	if err != nil {
		return "", err
	}
	if err := c.AwaitReady(); err != nil {
		return "", err
	}
	return string(line), nil
}

// FSStats issues "I" and returns total and used filesystem bytes.
func (c *Conn) FSStats() (protocol.FSStats, error) {
	if err := c.command("fs_stats", protocol.CmdFSStats, protocol.EncodeCommand(protocol.CmdFSStats)); err != nil {
		return protocol.FSStats{}, err
	}
	buf, err := c.readFull("fs_stats", 2*protocol.SizeWordSize)
	if err != nil {
		return protocol.FSStats{}, err
	}
	if err := c.AwaitReady(); err != nil {
		return protocol.FSStats{}, err
	}
	return protocol.FSStats{
		Total: protocol.DecodeSize(buf[:protocol.SizeWordSize]),
		Used:  protocol.DecodeSize(buf[protocol.SizeWordSize:]),
	}, nil
}

// Delete issues "X:<path>". Deleting a directory removes it recursively.
func (c *Conn) Delete(path string) error {
	status, err := c.delete("delete", path)
	if err != nil {
		return err
	}
	if status == protocol.StatusFailed {
		return fmt.Errorf("delete %s: %w", path, ErrDeleteRefused)
	}
	return nil
}

func (c *Conn) delete(op, path string) (protocol.Status, error) {
	line, err := protocol.EncodePathCommand(protocol.CmdDelete, path)
	if err != nil {
		return protocol.StatusUnrecognized, err
	}
	if err := c.command(op, protocol.CmdDelete, line); err != nil {
		return protocol.StatusUnrecognized, err
	}

	b, ok, err := c.readByte(op)
	if err != nil {
		return protocol.StatusUnrecognized, err
	}
	if !ok {
		c.collector.IncTimeout()
		return protocol.StatusUnrecognized, protocol.TimeoutError(op, "no delete status")
	}
	status := protocol.DecodeStatus(b)
	if status == protocol.StatusUnrecognized {
		return status, c.violation(op, "unexpected delete status 0x%02X", b)
	}
	return status, c.AwaitReady()
}
