package device

import "github.com/pithecene-io/devsync/protocol"

// List issues "L" and returns the entries in the order the device sent
// them. The stream ends only at the exact pair (0xFFFFFFFF, ""); an empty
// path with any other size, or the sentinel size with a path, is a
// protocol violation.
func (c *Conn) List() ([]protocol.FileEntry, error) {
	if err := c.command("list", protocol.CmdList, protocol.EncodeCommand(protocol.CmdList)); err != nil {
		return nil, err
	}

	var entries []protocol.FileEntry
	for {
		sizeBytes, err := c.readFull("list", protocol.SizeWordSize)
		if err != nil {
			return nil, err
		}
		path, err := c.readUntil("list", 0)
		if err != nil {
			return nil, err
		}
		size := protocol.DecodeSize(sizeBytes)

		switch {
		case size == protocol.SizeTerminator && len(path) == 0:
			c.collector.AddFilesListed(len(entries))
			if err := c.AwaitReady(); err != nil {
				return nil, err
			}
			return entries, nil
		case len(path) == 0:
			return nil, c.violation("list", "empty path with size %d", size)
		case size == protocol.SizeTerminator:
			return nil, c.violation("list", "terminator size with path %q", path)
		}

		entries = append(entries, protocol.FileEntry{Path: string(path), Size: size})
	}
}
