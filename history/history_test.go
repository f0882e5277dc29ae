package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/bedmesh/coord"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordLoad(t *testing.T) {
	s := openTestStore(t)

	samples := []coord.Point{
		{X: 0, Y: 0, Z: 0.1},
		{X: 0, Y: 10, Z: -0.025},
		{X: 10, Y: 10, Z: 0.3333333333333333},
		{X: 10, Y: 0, Z: 0},
	}
	run := &Run{Name: "bed", Source: "/dev/ttyUSB0", NX: 2, NY: 2, XMax: 10, YMax: 10}
	require.NoError(t, s.Record(run, samples))
	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.CreatedAt)
	assert.Equal(t, 4, run.Samples)

	got, err := s.Load(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, samples, got, "sweep order is kept")

	r, err := s.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, r)
}

func TestStore_RunsLatest(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	for i, name := range []string{"first", "second", "third"} {
		err := s.Record(&Run{Name: name, NX: 1, NY: 1, CreatedAt: int64(i + 1)}, []coord.Point{{Z: float64(i)}})
		require.NoError(t, err)
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].Name)
	assert.Equal(t, "first", runs[2].Name)

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "third", latest.Name)
	assert.Equal(t, 1, latest.Samples)
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)

	run := &Run{RunID: "fixed-id", NX: 1, NY: 1}
	require.NoError(t, s.Record(run, []coord.Point{{X: 1}}))

	// duplicate ids are rejected and leave no partial samples
	err := s.Record(&Run{RunID: "fixed-id", NX: 1, NY: 1}, []coord.Point{{X: 2}, {X: 3}})
	assert.Error(t, err)
	pts, err := s.Load("fixed-id")
	require.NoError(t, err)
	assert.Equal(t, []coord.Point{{X: 1}}, pts)

	require.NoError(t, s.Delete("fixed-id"))
	_, err = s.Load("fixed-id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("fixed-id"), ErrNotFound)
}
