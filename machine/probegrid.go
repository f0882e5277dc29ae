package machine

import (
	"fmt"
	"io"
	"log"

	"gonum.org/v1/gonum/floats"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/gcode"
)

// ProbeGridOptions configure a serpentine grid probe sweep over
// [0,XMax] x [0,YMax].
type ProbeGridOptions struct {
	XMax, YMax float64
	NX, NY     int

	// FeedRate is used for XY moves between samples.
	FeedRate float64
	// ProbeFeedRate is the coarse probe speed.
	ProbeFeedRate float64
	// FineFeedRate is the second, slower reference probe speed.
	// Defaults to half of ProbeFeedRate.
	FineFeedRate float64

	ProbeDepth   float64
	TravelHeight float64
	SafeHeight   float64

	// Reference adds a coarse and fine touch-off at the center of the
	// area that zeroes the work Z before sampling.
	Reference bool
}

// Normalize validates the options and fills in defaults.
func (opt ProbeGridOptions) Normalize() (ProbeGridOptions, error) {
	if opt.NX < 1 || opt.NY < 1 {
		return opt, fmt.Errorf("invalid sample counts %dx%d: need at least 1 per axis", opt.NX, opt.NY)
	}
	if opt.XMax < 0 || opt.YMax < 0 {
		return opt, fmt.Errorf("invalid extents %gx%g: must not be negative", opt.XMax, opt.YMax)
	}
	if opt.FeedRate <= 0 || opt.ProbeFeedRate <= 0 {
		return opt, fmt.Errorf("invalid feed rates %g/%g: must be positive", opt.FeedRate, opt.ProbeFeedRate)
	}
	if opt.FineFeedRate == 0 {
		opt.FineFeedRate = opt.ProbeFeedRate / 2
	}
	if opt.FineFeedRate < 0 {
		return opt, fmt.Errorf("invalid fine feed rate %g: must be positive", opt.FineFeedRate)
	}
	if opt.ProbeDepth >= opt.TravelHeight {
		return opt, fmt.Errorf("probe depth %g must be below travel height %g", opt.ProbeDepth, opt.TravelHeight)
	}
	return opt, nil
}

// Step is one XY position of the sweep and the blocks that probe it.
type Step struct {
	X, Y   float64
	Blocks []gcode.Block

	// Probes is the number of probe reports the blocks produce.
	Probes int
}

// Plan is a complete probe sweep program.
type Plan struct {
	Preamble []gcode.Block

	// Reference is the center touch-off, nil if disabled.
	Reference *Step

	Samples  []Step
	Epilogue []gcode.Block
}

// Blocks returns the whole program in order.
func (p Plan) Blocks() []gcode.Block {
	b := append([]gcode.Block(nil), p.Preamble...)
	if p.Reference != nil {
		b = append(b, p.Reference.Blocks...)
	}
	for _, s := range p.Samples {
		b = append(b, s.Blocks...)
	}
	return append(b, p.Epilogue...)
}

// Points returns the XY positions of the samples in sweep order.
func (p Plan) Points() []coord.Point {
	res := make([]coord.Point, len(p.Samples))
	for i, s := range p.Samples {
		res[i] = coord.Point{X: s.X, Y: s.Y}
	}
	return res
}

// WriteTo writes the program as text, one block per line.
func (p Plan) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, gcode.NewBuffer(&gcode.BlocksReader{Blocks: p.Blocks()}))
}

// span returns n evenly spaced values over [0,max], endpoints included.
func span(n int, max float64) []float64 {
	if n == 1 {
		return []float64{0}
	}
	return floats.Span(make([]float64, n), 0, max)
}

// Lattice returns the sample positions of each axis.
func (opt ProbeGridOptions) Lattice() (xs, ys []float64) {
	return span(opt.NX, opt.XMax), span(opt.NY, opt.YMax)
}

func moveXY(x, y, feed float64) gcode.Block {
	return gcode.Block{
		{W: 'G', Arg: 1},
		{W: 'X', Arg: x},
		{W: 'Y', Arg: y},
		{W: 'F', Arg: feed},
	}
}
func moveZ(z float64) gcode.Block {
	return gcode.Block{
		{W: 'G', Arg: 0},
		{W: 'Z', Arg: z},
	}
}

// Plan generates the sweep.
//
// Rows run over X; even rows visit Y ascending and odd rows descending so
// consecutive samples are always neighbors.
func (opt ProbeGridOptions) Plan() (*Plan, error) {
	opt, err := opt.Normalize()
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Preamble: []gcode.Block{
			{{W: 'G', Arg: 90}, {W: 'G', Arg: 21}, {W: 'G', Arg: 17}},
			moveZ(opt.SafeHeight),
		},
		Epilogue: []gcode.Block{moveZ(opt.SafeHeight)},
	}

	if opt.Reference {
		cx, cy := opt.XMax/2, opt.YMax/2
		b := []gcode.Block{moveXY(cx, cy, opt.FeedRate), moveZ(opt.TravelHeight)}
		b = append(b, probeCommand(opt.ProbeDepth, opt.ProbeFeedRate, opt.TravelHeight, true)...)
		b = append(b, probeCommand(opt.ProbeDepth, opt.FineFeedRate, opt.TravelHeight, true)...)
		p.Reference = &Step{X: cx, Y: cy, Blocks: b, Probes: 2}
	}

	xs, ys := opt.Lattice()
	p.Samples = make([]Step, 0, len(xs)*len(ys))
	for i, x := range xs {
		for j := range ys {
			y := ys[j]
			if i%2 != 0 {
				y = ys[len(ys)-1-j]
			}
			b := append([]gcode.Block{moveXY(x, y, opt.FeedRate)},
				probeCommand(opt.ProbeDepth, opt.ProbeFeedRate, opt.TravelHeight, false)...)
			p.Samples = append(p.Samples, Step{X: x, Y: y, Blocks: b, Probes: 1})
		}
	}

	return p, nil
}

// ProbeGrid runs the sweep live and returns the samples in sweep order.
//
// onSample, if set, is called as each sample is parsed.
func (m *Machine) ProbeGrid(opt ProbeGridOptions, onSample func(int, coord.Point)) ([]coord.Point, error) {
	plan, err := opt.Plan()
	if err != nil {
		return nil, err
	}

	m.discardResults()
	err = m.Run(plan.Preamble)
	if err != nil {
		return nil, err
	}
	if plan.Reference != nil {
		err = m.Run(plan.Reference.Blocks)
		if err != nil {
			return nil, err
		}
		ref, err := m.collect(plan.Reference.Probes)
		if err != nil {
			return nil, fmt.Errorf("reference probe: %w", err)
		}
		log.Printf("reference touch-off at %s", ref[len(ref)-1])
	}

	samples := make([]coord.Point, 0, len(plan.Samples))
	for i, s := range plan.Samples {
		err = m.Run(s.Blocks)
		if err != nil {
			return nil, err
		}
		p, err := m.collect(s.Probes)
		if err != nil {
			return nil, fmt.Errorf("sample %d at (%g,%g): %w", i, s.X, s.Y, err)
		}
		samples = append(samples, p...)
		if onSample != nil {
			onSample(i, p[0])
		}
	}

	err = m.Run(plan.Epilogue)
	if err != nil {
		return nil, err
	}
	return samples, nil
}
