package meshlevel

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/mastercactapus/bedmesh/coord"
)

// Interpolator returns the surface height at x,y.
type Interpolator interface {
	Interpolate(x, y float64) (float64, error)
}

// OutOfDomainError is returned when interpolating outside the sampled area.
type OutOfDomainError struct {
	X, Y float64

	// Min and Max are the corners of the sampled bounding box.
	Min, Max coord.Point
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("meshlevel: (%s,%s) outside sampled area [%s,%s]x[%s,%s]",
		coord.FormatFloat(e.X, -1), coord.FormatFloat(e.Y, -1),
		coord.FormatFloat(e.Min.X, -1), coord.FormatFloat(e.Max.X, -1),
		coord.FormatFloat(e.Min.Y, -1), coord.FormatFloat(e.Max.Y, -1),
	)
}

// HeightMap is a sampled bed surface.
//
// Samples are kept sorted by X, then Y. When every (x, y) axis combination
// has exactly one sample the map is a dense grid and interpolates
// bilinearly; otherwise it stays scattered and interpolates over a
// Delaunay triangulation. A HeightMap is never modified once built.
type HeightMap struct {
	points []coord.Point
	xs, ys []float64

	// z is nil for scattered maps.
	z *mat.Dense

	mesh    *Mesh
	meshErr error
}

var _ Interpolator = &HeightMap{}

// New builds a height map from samples in any order.
func New(samples []coord.Point) (*HeightMap, error) {
	if len(samples) == 0 {
		return nil, errors.New("meshlevel: no samples")
	}
	for i, p := range samples {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return nil, fmt.Errorf("meshlevel: sample %d: non-finite value %s", i, p)
		}
	}

	hm := &HeightMap{points: make([]coord.Point, len(samples))}
	copy(hm.points, samples)
	sort.SliceStable(hm.points, func(i, j int) bool { return hm.points[i].LessXY(hm.points[j]) })

	xv := make([]float64, len(samples))
	yv := make([]float64, len(samples))
	for i, p := range hm.points {
		xv[i], yv[i] = p.X, p.Y
	}
	hm.xs = axisValues(xv)
	hm.ys = axisValues(yv)

	if len(hm.points) == len(hm.xs)*len(hm.ys) {
		hm.buildGrid()
	}
	if hm.z == nil {
		hm.mesh, hm.meshErr = NewMesh(hm.points)
	}
	return hm, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// axisValues returns the sorted unique values of v, merging values
// within coord.Epsilon of the previous one.
func axisValues(v []float64) []float64 {
	sort.Float64s(v)
	res := v[:1:1]
	for _, f := range v[1:] {
		if f-res[len(res)-1] > coord.Epsilon {
			res = append(res, f)
		}
	}
	return res
}

// axisIndex returns the index of the axis value matching v, or -1.
func axisIndex(axis []float64, v float64) int {
	i := sort.SearchFloat64s(axis, v)
	if i < len(axis) && axis[i]-v <= coord.Epsilon {
		return i
	}
	if i > 0 && v-axis[i-1] <= coord.Epsilon {
		return i - 1
	}
	return -1
}

// buildGrid fills z if each cell holds exactly one sample and reorders
// points to match the grid.
func (hm *HeightMap) buildGrid() {
	z := mat.NewDense(len(hm.xs), len(hm.ys), nil)
	seen := make([]bool, len(hm.points))
	ordered := make([]coord.Point, len(hm.points))
	for _, p := range hm.points {
		i, j := axisIndex(hm.xs, p.X), axisIndex(hm.ys, p.Y)
		if i < 0 || j < 0 {
			return
		}
		n := i*len(hm.ys) + j
		if seen[n] {
			return
		}
		seen[n] = true
		ordered[n] = p
		z.Set(i, j, p.Z)
	}
	hm.z = z
	hm.points = ordered
}

// IsGrid reports whether the map has a dense grid.
func (hm *HeightMap) IsGrid() bool { return hm.z != nil }

// Len returns the number of samples.
func (hm *HeightMap) Len() int { return len(hm.points) }

// Points returns the samples in canonical order.
func (hm *HeightMap) Points() []coord.Point {
	return append([]coord.Point(nil), hm.points...)
}

// XAxis returns the unique sorted X values.
func (hm *HeightMap) XAxis() []float64 { return append([]float64(nil), hm.xs...) }

// YAxis returns the unique sorted Y values.
func (hm *HeightMap) YAxis() []float64 { return append([]float64(nil), hm.ys...) }

// At returns the Z of grid cell i,j. It panics on scattered maps or
// out of range indexes.
func (hm *HeightMap) At(i, j int) float64 {
	if hm.z == nil {
		panic("meshlevel: At called on a scattered height map")
	}
	return hm.z.At(i, j)
}

// Bounds returns the corners of the sampled bounding box.
func (hm *HeightMap) Bounds() (min, max coord.Point) {
	min = coord.Point{X: hm.xs[0], Y: hm.ys[0]}
	max = coord.Point{X: hm.xs[len(hm.xs)-1], Y: hm.ys[len(hm.ys)-1]}
	return min, max
}

func (hm *HeightMap) outOfDomain(x, y float64) error {
	min, max := hm.Bounds()
	return &OutOfDomainError{X: x, Y: y, Min: min, Max: max}
}

// Rezero returns a copy of the map with the Z of grid cell xi,yj
// subtracted from every sample, so that cell reads zero.
func (hm *HeightMap) Rezero(xi, yj int) (*HeightMap, error) {
	if hm.z == nil {
		return nil, errors.New("meshlevel: rezero requires a grid height map")
	}
	if xi < 0 || xi >= len(hm.xs) || yj < 0 || yj >= len(hm.ys) {
		return nil, fmt.Errorf("meshlevel: reference cell %d,%d outside %dx%d grid", xi, yj, len(hm.xs), len(hm.ys))
	}

	ref := hm.z.At(xi, yj)
	pts := hm.Points()
	for i := range pts {
		pts[i].Z -= ref
	}
	return New(pts)
}

// Translate returns a copy of the map with every sample shifted in XY.
func (hm *HeightMap) Translate(dx, dy float64) (*HeightMap, error) {
	pts := hm.Points()
	for i := range pts {
		pts[i] = pts[i].OffsetXY(dx, dy)
	}
	return New(pts)
}

// Interpolate returns the surface height at x,y. Points outside the
// sampled area are an *OutOfDomainError; the surface is never extrapolated.
func (hm *HeightMap) Interpolate(x, y float64) (float64, error) {
	if hm.z == nil {
		if hm.meshErr != nil {
			return 0, fmt.Errorf("meshlevel: scattered height map: %w", hm.meshErr)
		}
		return hm.mesh.Interpolate(x, y)
	}

	i, tx, ok := segment(hm.xs, x)
	if !ok {
		return 0, hm.outOfDomain(x, y)
	}
	j, ty, ok := segment(hm.ys, y)
	if !ok {
		return 0, hm.outOfDomain(x, y)
	}

	i1, j1 := i, j
	if tx > 0 {
		i1++
	}
	if ty > 0 {
		j1++
	}
	z00, z10 := hm.z.At(i, j), hm.z.At(i1, j)
	z01, z11 := hm.z.At(i, j1), hm.z.At(i1, j1)

	return (1-tx)*(1-ty)*z00 + tx*(1-ty)*z10 + (1-tx)*ty*z01 + tx*ty*z11, nil
}

// segment locates v on axis, returning the lower index and the fractional
// position towards the next value. Values within coord.Epsilon of the ends
// snap to them.
func segment(axis []float64, v float64) (int, float64, bool) {
	n := len(axis)
	if !finite(v) {
		return 0, 0, false
	}
	if v < axis[0]-coord.Epsilon || v > axis[n-1]+coord.Epsilon {
		return 0, 0, false
	}
	if n == 1 || v <= axis[0] {
		return 0, 0, true
	}
	if v >= axis[n-1] {
		return n - 1, 0, true
	}

	i := sort.Search(n, func(k int) bool { return axis[k] > v }) - 1
	t := (v - axis[i]) / (axis[i+1] - axis[i])
	return i, math.Max(0, math.Min(1, t)), true
}

// Surface evaluates the map at the XY of each point.
func (hm *HeightMap) Surface(points []coord.Point) ([]coord.Point, error) {
	res := make([]coord.Point, len(points))
	for i, p := range points {
		z, err := hm.Interpolate(p.X, p.Y)
		if err != nil {
			return nil, err
		}
		res[i] = coord.Point{X: p.X, Y: p.Y, Z: z}
	}
	return res, nil
}
