package meshlevel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/gcode"
)

// RemapOptions configure a Remapper.
type RemapOptions struct {
	// OffsetX and OffsetY are added to every X and Y word.
	OffsetX, OffsetY float64

	// XYPrecision and ZPrecision are the decimals kept in rewritten
	// words. Values below 1 select 3 and 4.
	XYPrecision int
	ZPrecision  int
}

func (opt RemapOptions) normalize() RemapOptions {
	if opt.XYPrecision <= 0 {
		opt.XYPrecision = 3
	}
	if opt.ZPrecision <= 0 {
		opt.ZPrecision = 4
	}
	return opt
}

// Remapper applies planar offsets and height map Z correction to a
// toolpath in a single forward pass.
//
// Z words are corrected using the last seen X and Y, so the input must
// state absolute X and Y before any Z that needs correction. Z words seen
// before both are known pass through untouched.
type Remapper struct {
	r   gcode.LineReader
	hm  Interpolator
	opt RemapOptions

	x, y         float64
	haveX, haveY bool

	corrections []coord.Point

	warnedRelative bool
	warnedInches   bool
}

func NewRemapper(r gcode.LineReader, hm Interpolator, opt RemapOptions) *Remapper {
	return &Remapper{
		r:   r,
		hm:  hm,
		opt: opt.normalize(),
	}
}

// Read returns the next line, rewritten if needed. Lines that need no
// change are returned as read.
func (m *Remapper) Read() (*gcode.Line, error) {
	l, err := m.r.ReadLine()
	if err != nil {
		return nil, err
	}
	m.checkModes(l)

	if ok, x := l.Arg('X'); ok {
		m.x = coord.Round(x+m.opt.OffsetX, m.opt.XYPrecision)
		m.haveX = true
		if m.x != x {
			l.SetArg('X', m.x, m.opt.XYPrecision)
		}
	}
	if ok, y := l.Arg('Y'); ok {
		m.y = coord.Round(y+m.opt.OffsetY, m.opt.XYPrecision)
		m.haveY = true
		if m.y != y {
			l.SetArg('Y', m.y, m.opt.XYPrecision)
		}
	}

	ok, z := l.Arg('Z')
	if !ok || !m.haveX || !m.haveY {
		return l, nil
	}

	c, err := m.hm.Interpolate(m.x, m.y)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", l.Number, err)
	}
	m.corrections = append(m.corrections, coord.Point{X: m.x, Y: m.y, Z: coord.Round(c, m.opt.ZPrecision)})

	nz := coord.Round(z+c, m.opt.ZPrecision)
	if nz != z {
		l.SetArg('Z', nz, m.opt.ZPrecision)
	}
	return l, nil
}

func (m *Remapper) checkModes(l *gcode.Line) {
	if ok, w := l.Modal(gcode.ModalGroupDistanceMode); ok && w.Arg == 91 && !m.warnedRelative {
		log.Printf("WARNING: line %d: G91 relative distance mode; coordinates are remapped as absolute", l.Number)
		m.warnedRelative = true
	}
	if ok, w := l.Modal(gcode.ModalGroupUnits); ok && w.Arg == 20 && !m.warnedInches {
		log.Printf("WARNING: line %d: G20 inch units; height map is applied as-is", l.Number)
		m.warnedInches = true
	}
}

// Corrections returns the XY position and applied Z correction of every
// corrected line so far.
func (m *Remapper) Corrections() []coord.Point {
	return append([]coord.Point(nil), m.corrections...)
}

// Remap reads a whole toolpath from r and writes the corrected toolpath to
// w, keeping each line's terminator. Nothing is written unless the whole
// pass succeeds.
func Remap(r io.Reader, w io.Writer, hm Interpolator, opt RemapOptions) ([]coord.Point, error) {
	m := NewRemapper(gcode.NewParser(r), hm, opt)

	var buf bytes.Buffer
	for {
		l, err := m.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		buf.WriteString(l.String())
		buf.WriteString(l.EOL)
	}

	_, err := buf.WriteTo(w)
	if err != nil {
		return nil, err
	}
	return m.Corrections(), nil
}
