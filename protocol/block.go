package protocol

import "fmt"

// Block is one upload chunk. It is built per send attempt and discarded
// once acknowledged.
type Block struct {
	Payload []byte
}

// NewBlock validates the payload length.
func NewBlock(payload []byte) (Block, error) {
	if len(payload) < 1 || len(payload) > MaxBlockSize {
		return Block{}, fmt.Errorf("block payload length %d outside [1,%d]", len(payload), MaxBlockSize)
	}
	return Block{Payload: payload}, nil
}

// Len returns the payload length.
func (b Block) Len() int { return len(b.Payload) }

// Frame returns the wire frame {0x42, len-1, payload, checksum}.
func (b Block) Frame() []byte {
	frame := make([]byte, 0, len(b.Payload)+3)
	frame = append(frame, BlockMarker, byte(len(b.Payload)-1))
	frame = append(frame, b.Payload...)
	return append(frame, Checksum(frame))
}

// ParseFrameHeader returns the payload length encoded in a block header.
func ParseFrameHeader(lenByte byte) int {
	return int(lenByte) + 1
}

// BlockCount returns how many blocks a file of size bytes needs.
func BlockCount(size int) int {
	return (size + MaxBlockSize - 1) / MaxBlockSize
}

// SplitBlocks slices content into consecutive blocks of at most
// MaxBlockSize bytes. Empty content yields no blocks.
func SplitBlocks(content []byte) []Block {
	blocks := make([]Block, 0, BlockCount(len(content)))
	for off := 0; off < len(content); off += MaxBlockSize {
		end := min(off+MaxBlockSize, len(content))
		blocks = append(blocks, Block{Payload: content[off:end]})
	}
	return blocks
}
