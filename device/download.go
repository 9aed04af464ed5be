package device

import "github.com/pithecene-io/devsync/protocol"

// Download issues "R:<path>" and returns the verified file content together
// with the size the device announced.
//
// A missing or unopenable file, a checksum mismatch and a response cut short
// are reported as *protocol.FileError; the link is back at the prompt when
// Download returns one.
func (c *Conn) Download(path string) ([]byte, uint32, error) {
	line, err := protocol.EncodePathCommand(protocol.CmdRead, path)
	if err != nil {
		return nil, 0, err
	}
	if err := c.command("download", protocol.CmdRead, line); err != nil {
		return nil, 0, err
	}

	sizeBytes, err := c.readFull("download", protocol.SizeWordSize)
	if err != nil {
		return nil, 0, err
	}
	size := protocol.DecodeSize(sizeBytes)

	switch size {
	case protocol.SizeNotFound:
		return nil, 0, c.fileFailure("download", path, protocol.ReasonNotFound, c.AwaitReady())
	case protocol.SizeCannotOpen, protocol.SizeCannotOpenAlt:
		return nil, 0, c.fileFailure("download", path, protocol.ReasonCannotOpen, c.AwaitReady())
	}

	content, err := c.read("download", int(size))
	if err != nil {
		return nil, 0, err
	}
	if uint32(len(content)) < size {
		c.collector.IncTimeout()
		return nil, size, c.fileFailure("download", path, protocol.ReasonIncomplete, c.settle("download"))
	}
	sum, ok, err := c.readByte("download")
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		c.collector.IncTimeout()
		return nil, size, c.fileFailure("download", path, protocol.ReasonIncomplete, c.settle("download"))
	}

	if err := c.AwaitReady(); err != nil {
		return nil, 0, err
	}
	if !protocol.Verify(sum, sizeBytes, content) {
		return nil, size, c.fileFailure("download", path, protocol.ReasonChecksumMismatch, nil)
	}

	c.collector.AddBytesDownloaded(len(content))
	c.collector.IncFileDownloaded()
	return content, size, nil
}

// fileFailure builds a per-file error unless resynchronizing the link
// failed, in which case that fatal error wins.
func (c *Conn) fileFailure(op, path string, reason protocol.Reason, syncErr error) error {
	return c.fileFailureAt(op, path, reason, 0, syncErr)
}

func (c *Conn) fileFailureAt(op, path string, reason protocol.Reason, offset uint32, syncErr error) error {
	if syncErr != nil {
		return syncErr
	}
	c.collector.IncFileFailure(reason.String())
	return &protocol.FileError{Op: op, Path: path, Reason: reason, Offset: offset}
}
