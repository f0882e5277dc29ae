package machine

import (
	"fmt"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/gcode"
	"github.com/mastercactapus/bedmesh/machine/grbl"
)

// ProbeOptions configure a straight z-probe operation at the current position.
type ProbeOptions struct {
	// ZeroZAxis sets the work Z to zero at the contact point.
	ZeroZAxis bool

	FeedRate     float64
	ProbeDepth   float64
	TravelHeight float64
}

func (opt ProbeOptions) Validate() error {
	if opt.FeedRate <= 0 {
		return fmt.Errorf("invalid probe feed rate %g: must be positive", opt.FeedRate)
	}
	if opt.ProbeDepth >= opt.TravelHeight {
		return fmt.Errorf("probe depth %g must be below travel height %g", opt.ProbeDepth, opt.TravelHeight)
	}
	return nil
}

// probeCommand returns the blocks for a single touch-off and retract.
func probeCommand(depth, feed, lift float64, zero bool) []gcode.Block {
	b := []gcode.Block{
		{
			{W: 'G', Arg: 38.2},
			{W: 'Z', Arg: depth},
			{W: 'F', Arg: feed},
		},
	}
	if zero {
		b = append(b, gcode.Block{
			{W: 'G', Arg: 92},
			{W: 'Z', Arg: 0},
		})
	}
	return append(b, gcode.Block{
		{W: 'G', Arg: 0},
		{W: 'Z', Arg: lift},
	})
}

// ProbeZ will perform a single straight z-probe from the current location.
func (m *Machine) ProbeZ(opt ProbeOptions) (*coord.Point, error) {
	err := opt.Validate()
	if err != nil {
		return nil, err
	}

	m.discardResults()
	err = m.Run(probeCommand(opt.ProbeDepth, opt.FeedRate, opt.TravelHeight, opt.ZeroZAxis))
	if err != nil {
		return nil, err
	}
	p, err := m.collect(1)
	if err != nil {
		return nil, err
	}
	return &p[0], nil
}

// collect parses the pending results, which must be exactly n probe reports.
func (m *Machine) collect(n int) ([]coord.Point, error) {
	pts, err := grbl.ParseProbes(m.Results(), m.Offset)
	if err != nil {
		return nil, err
	}
	if len(pts) != n {
		return nil, fmt.Errorf("expected %d probe reports, got %d", n, len(pts))
	}
	return pts, nil
}
