package meshlevel

import (
	"fmt"

	"github.com/mastercactapus/bedmesh/coord"
)

// AxisMismatchError is returned when two height maps were not sampled at
// the same positions.
type AxisMismatchError struct {
	// Index is the first mismatched sample, -1 when the counts differ.
	Index int
	A, B  coord.Point

	LenA, LenB int
}

func (e *AxisMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("meshlevel: height maps differ in size: %d != %d samples", e.LenA, e.LenB)
	}
	return fmt.Sprintf("meshlevel: height maps differ at sample %d: %s vs %s", e.Index, e.A, e.B)
}

// Diff returns a height map of a.Z - b.Z at the positions of a. Both maps
// must hold the same positions, within coord.Epsilon.
func Diff(a, b *HeightMap) (*HeightMap, error) {
	if a.Len() != b.Len() {
		return nil, &AxisMismatchError{Index: -1, LenA: a.Len(), LenB: b.Len()}
	}

	res := make([]coord.Point, a.Len())
	for i, pa := range a.points {
		pb := b.points[i]
		if !pa.SameXY(pb, coord.Epsilon) {
			return nil, &AxisMismatchError{Index: i, A: pa, B: pb, LenA: a.Len(), LenB: b.Len()}
		}
		res[i] = coord.Point{X: pa.X, Y: pa.Y, Z: pa.Z - pb.Z}
	}
	return New(res)
}
