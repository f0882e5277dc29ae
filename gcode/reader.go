package gcode

import "io"

// Reader yields blocks in order, returning io.EOF when done.
type Reader interface {
	Read() (Block, error)
}

// BlocksReader is a Reader over a fixed list of blocks.
type BlocksReader struct {
	Blocks []Block
	n      int
}

func (b *BlocksReader) Read() (Block, error) {
	if b.n == len(b.Blocks) {
		return nil, io.EOF
	}

	b.n++
	return b.Blocks[b.n-1], nil
}
