package machine

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/gcode"
	"github.com/mastercactapus/bedmesh/machine/grbl"
)

func testGridOptions(nx, ny int) ProbeGridOptions {
	return ProbeGridOptions{
		XMax: 400, YMax: 300,
		NX: nx, NY: ny,
		FeedRate:      500,
		ProbeFeedRate: 100,
		ProbeDepth:    -1,
		TravelHeight:  2,
		SafeHeight:    25,
	}
}

func TestProbeGridOptions_Plan_Lattice(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {1, 4}, {3, 1}, {2, 2}, {6, 6}, {5, 3}} {
		nx, ny := size[0], size[1]
		opt := testGridOptions(nx, ny)
		p, err := opt.Plan()
		require.NoError(t, err)
		require.Len(t, p.Samples, nx*ny)

		for i := 0; i < nx; i++ {
			for j := 0; j < ny; j++ {
				s := p.Samples[i*ny+j]
				wantX := 0.0
				if nx > 1 {
					wantX = opt.XMax * float64(i) / float64(nx-1)
				}
				jj := j
				if i%2 == 1 {
					jj = ny - 1 - j
				}
				wantY := 0.0
				if ny > 1 {
					wantY = opt.YMax * float64(jj) / float64(ny-1)
				}
				assert.InDelta(t, wantX, s.X, 1e-9, "%dx%d sample %d,%d", nx, ny, i, j)
				assert.InDelta(t, wantY, s.Y, 1e-9, "%dx%d sample %d,%d", nx, ny, i, j)
				assert.Equal(t, 1, s.Probes)
			}
		}

		xs, ys := opt.Lattice()
		assert.Len(t, xs, nx)
		assert.Len(t, ys, ny)
		assert.Equal(t, 0.0, xs[0])
		if nx > 1 {
			assert.Equal(t, opt.XMax, xs[nx-1])
		}
		if ny > 1 {
			assert.Equal(t, opt.YMax, ys[ny-1])
		}
	}
}

func TestProbeGridOptions_Plan_Program(t *testing.T) {
	opt := testGridOptions(2, 2)
	opt.XMax, opt.YMax = 10, 20
	p, err := opt.Plan()
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = p.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"G90 G21 G17",
		"G0 Z25",
		"G1 X0 Y0 F500",
		"G38.2 Z-1 F100",
		"G0 Z2",
		"G1 X0 Y20 F500",
		"G38.2 Z-1 F100",
		"G0 Z2",
		"G1 X10 Y20 F500",
		"G38.2 Z-1 F100",
		"G0 Z2",
		"G1 X10 Y0 F500",
		"G38.2 Z-1 F100",
		"G0 Z2",
		"G0 Z25",
	}, "\n")+"\n", buf.String())

	assert.Equal(t, []coord.Point{{X: 0, Y: 0}, {X: 0, Y: 20}, {X: 10, Y: 20}, {X: 10, Y: 0}}, p.Points())
}

func TestProbeGridOptions_Plan_Reference(t *testing.T) {
	opt := testGridOptions(2, 2)
	opt.XMax, opt.YMax = 10, 20
	opt.Reference = true
	p, err := opt.Plan()
	require.NoError(t, err)
	require.NotNil(t, p.Reference)
	assert.Equal(t, 2, p.Reference.Probes)

	var lines []string
	for _, b := range p.Reference.Blocks {
		lines = append(lines, b.String())
	}
	assert.Equal(t, []string{
		"G1 X5 Y10 F500",
		"G0 Z2",
		"G38.2 Z-1 F100",
		"G92 Z0",
		"G0 Z2",
		"G38.2 Z-1 F50",
		"G92 Z0",
		"G0 Z2",
	}, lines)
	assert.Len(t, p.Blocks(), 2+len(lines)+4*3+1)
}

func TestProbeGridOptions_Normalize(t *testing.T) {
	bad := []func(*ProbeGridOptions){
		func(o *ProbeGridOptions) { o.NX = 0 },
		func(o *ProbeGridOptions) { o.NY = -1 },
		func(o *ProbeGridOptions) { o.XMax = -5 },
		func(o *ProbeGridOptions) { o.FeedRate = 0 },
		func(o *ProbeGridOptions) { o.ProbeFeedRate = -1 },
		func(o *ProbeGridOptions) { o.FineFeedRate = -1 },
		func(o *ProbeGridOptions) { o.ProbeDepth = 5 },
	}
	for i, mod := range bad {
		opt := testGridOptions(3, 3)
		mod(&opt)
		_, err := opt.Plan()
		assert.Error(t, err, "case %d", i)
	}

	opt, err := testGridOptions(2, 2).Normalize()
	require.NoError(t, err)
	assert.Equal(t, 50.0, opt.FineFeedRate)
}

// fakeAdapter acknowledges every command and answers probes with the
// surface height at the last commanded XY.
type fakeAdapter struct {
	cmds    []string
	results []string
	x, y    float64
	surface func(x, y float64) string
}

func (f *fakeAdapter) SendAndAwait(cmd, ack string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	l, err := gcode.ParseLine(len(f.cmds), cmd)
	if err != nil {
		return "", err
	}
	if ok, x := l.Arg('X'); ok {
		f.x = x
	}
	if ok, y := l.Arg('Y'); ok {
		f.y = y
	}
	if ok, g := l.Modal(gcode.ModalGroupMotion); ok && g.Arg == 38.2 {
		f.results = append(f.results, f.surface(f.x, f.y))
	}
	return ack, nil
}

func (f *fakeAdapter) Run(blocks []gcode.Block) error {
	for _, b := range blocks {
		_, err := f.SendAndAwait(b.String(), grbl.DefaultAck)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAdapter) Results() []string {
	res := f.results
	f.results = nil
	return res
}

func tilted(x, y float64) string {
	return fmt.Sprintf("[PRB:%.3f,%.3f,%.3f:1]", x, y, x/100+y/1000)
}

func TestMachine_ProbeGrid(t *testing.T) {
	a := &fakeAdapter{surface: tilted}
	m := NewMachine(a, grbl.ProbeOffset{X: -2, Y: 3})

	opt := testGridOptions(3, 2)
	opt.Reference = true

	var seen []int
	pts, err := m.ProbeGrid(opt, func(i int, p coord.Point) { seen = append(seen, i) })
	require.NoError(t, err)

	assert.Equal(t, []coord.Point{
		{X: -2, Y: 3, Z: 0},
		{X: -2, Y: 303, Z: 0.3},
		{X: 198, Y: 303, Z: 2.3},
		{X: 198, Y: 3, Z: 2},
		{X: 398, Y: 3, Z: 4},
		{X: 398, Y: 303, Z: 4.3},
	}, pts)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seen)
	assert.Equal(t, "G90 G21 G17", a.cmds[0])
	assert.Equal(t, "G0 Z25", a.cmds[len(a.cmds)-1])
}

func TestMachine_ProbeGrid_BadReport(t *testing.T) {
	a := &fakeAdapter{surface: func(x, y float64) string {
		if x > 0 {
			return "[PRB:1,2,3:0]"
		}
		return tilted(x, y)
	}}
	m := NewMachine(a, grbl.ProbeOffset{})

	_, err := m.ProbeGrid(testGridOptions(2, 2), nil)
	var perr *grbl.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, grbl.ProbeFailed, perr.Kind)
	// the sweep stops at the failing sample
	assert.NotEqual(t, "G0 Z25", a.cmds[len(a.cmds)-1])
}

func TestMachine_ProbeZ(t *testing.T) {
	a := &fakeAdapter{surface: tilted}
	a.x, a.y = 100, 50
	m := NewMachine(a, grbl.ProbeOffset{})

	p, err := m.ProbeZ(ProbeOptions{FeedRate: 50, ProbeDepth: -3, TravelHeight: 5, ZeroZAxis: true})
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 100, Y: 50, Z: 1.05}, *p)
	assert.Equal(t, []string{"G38.2 Z-3 F50", "G92 Z0", "G0 Z5"}, a.cmds)

	_, err = m.ProbeZ(ProbeOptions{FeedRate: 0, ProbeDepth: -3, TravelHeight: 5})
	assert.Error(t, err)
}
