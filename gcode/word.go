package gcode

import (
	"github.com/mastercactapus/bedmesh/coord"
)

// DefaultPrecision is the number of decimals used when formatting generated words.
const DefaultPrecision = 3

type Word struct {
	W   byte
	Arg float64
}

func (w Word) String() string {
	return string(w.W) + coord.FormatFloat(w.Arg, DefaultPrecision)
}
