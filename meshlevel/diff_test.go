package meshlevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/bedmesh/coord"
)

func TestDiff(t *testing.T) {
	a, err := New(cornerSamples)
	require.NoError(t, err)
	b, err := New([]coord.Point{
		{X: 10, Y: 10, Z: 1},
		{X: 0.0004, Y: 0, Z: 0.5},
		{X: 10, Y: 0, Z: 1},
		{X: 0, Y: 10, Z: 1},
	})
	require.NoError(t, err)

	d, err := Diff(a, b)
	require.NoError(t, err)
	assert.True(t, d.IsGrid())
	assert.Equal(t, []coord.Point{
		{X: 0, Y: 0, Z: -0.5},
		{X: 0, Y: 10, Z: 0},
		{X: 10, Y: 0, Z: 1},
		{X: 10, Y: 10, Z: 2},
	}, d.Points())
}

func TestDiff_Mismatch(t *testing.T) {
	a, err := New(cornerSamples)
	require.NoError(t, err)

	short, err := New(cornerSamples[:3])
	require.NoError(t, err)
	_, err = Diff(a, short)
	var aerr *AxisMismatchError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, -1, aerr.Index)
	assert.Equal(t, 3, aerr.LenB)

	moved, err := a.Translate(0, 0.01)
	require.NoError(t, err)
	_, err = Diff(a, moved)
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 0, aerr.Index)
	assert.Equal(t, coord.Point{X: 0, Y: 0.01, Z: 0}, aerr.B)
}
