package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/bedmesh/gcode"
	"github.com/mastercactapus/bedmesh/history"
	"github.com/mastercactapus/bedmesh/machine/grbl"
)

// fakeController acknowledges every command and reports probe contact at
// the last commanded XY, with Z = X/100.
type fakeController struct {
	r *io.PipeReader
	w *io.PipeWriter

	x, y float64
}

func newFakeController() *fakeController {
	r, w := io.Pipe()
	return &fakeController{r: r, w: w}
}

func (f *fakeController) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakeController) Close() error                { return f.w.Close() }

func (f *fakeController) Write(p []byte) (int, error) {
	cmd := strings.TrimSpace(string(p))
	reply := []string{"ok"}
	if cmd == "?" {
		reply = []string{"<Idle|MPos:0.000,0.000,0.000|FS:0,0>"}
	} else {
		l, err := gcode.ParseLine(1, cmd)
		if err != nil {
			return 0, err
		}
		if ok, x := l.Arg('X'); ok {
			f.x = x
		}
		if ok, y := l.Arg('Y'); ok {
			f.y = y
		}
		if ok, g := l.Modal(gcode.ModalGroupMotion); ok && g.Arg == 38.2 {
			reply = []string{fmt.Sprintf("[PRB:%.3f,%.3f,%.3f:1]", f.x, f.y, f.x/100), "ok"}
		}
	}
	for _, line := range reply {
		_, err := io.WriteString(f.w, line+"\r\n")
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func newTestAPI(t *testing.T) (*httptest.Server, string, *history.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	a := newAPI(func() (*grbl.Session, error) {
		return grbl.Open(newFakeController(), grbl.Config{}), nil
	}, grbl.ProbeOffset{}, filepath.Join(dir, "data"), store)
	srv := httptest.NewServer(a)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv, dir, store
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestAPI_Plan(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	code, body := post(t, srv.URL+"/api/plan?nx=2&ny=2&xmax=10&ymax=20&safe=30", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.True(t, strings.HasPrefix(body, "G90 G21 G17\nG0 Z30\nG1 X0 Y0 F1000\n"), body)

	code, _ = post(t, srv.URL+"/api/plan?nx=0", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = post(t, srv.URL+"/api/plan?nx=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_ProbeRemap(t *testing.T) {
	srv, dir, store := newTestAPI(t)

	code, body := post(t, srv.URL+"/api/probe?nx=2&ny=2&xmax=10&ymax=10&depth=-1&name=bed", "")
	require.Equal(t, http.StatusOK, code, body)

	var res probeResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, "bed.tsv", res.File)
	assert.True(t, res.Grid)
	assert.Len(t, res.Samples, 4)
	assert.NotEmpty(t, res.RunID)

	data, err := os.ReadFile(filepath.Join(dir, "data", "bed.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "x\ty\tz\n0\t0\t0\n0\t10\t0\n10\t0\t0.1\n10\t10\t0.1\n", string(data))

	code, body = get(t, srv.URL+"/data/bed.tsv")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(data), body)

	code, body = post(t, srv.URL+"/api/remap?mesh=bed", "G0 Z5\nG1 X5 Y5 ; center\nG1 Z-0.5\n")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "G0 Z5\nG1 X5 Y5 ; center\nG1 Z-0.45\n", body)

	code, body = post(t, srv.URL+"/api/remap?mesh=bed&xOffset=20", "G1 X0 Y0\nG1 Z0\n")
	assert.Equal(t, http.StatusUnprocessableEntity, code, body)

	code, _ = post(t, srv.URL+"/api/remap?mesh=missing", "G1 X0 Y0\n")
	assert.Equal(t, http.StatusNotFound, code)

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)

	code, body = get(t, srv.URL+"/api/history/"+res.RunID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(data), body)

	code, _ = get(t, srv.URL+"/api/history/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_DataFiles(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	req, err := http.NewRequest("PUT", srv.URL+"/data/sub/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, body := get(t, srv.URL+"/data/sub/a.txt")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello", body)

	req, err = http.NewRequest("DELETE", srv.URL+"/data/sub/a.txt", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, _ = get(t, srv.URL+"/data/sub/a.txt")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestParseCell(t *testing.T) {
	ok, xi, yj, err := parseCell(" 2, 3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, xi)
	assert.Equal(t, 3, yj)

	ok, _, _, err = parseCell("")
	assert.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"1", "1,2,3", "a,1", "1,b"} {
		_, _, _, err = parseCell(bad)
		assert.Error(t, err, bad)
	}
}

func TestRemapConfig_Validate(t *testing.T) {
	parse := func(args ...string) *remapConfig {
		fs := flag.NewFlagSet("remap", flag.ContinueOnError)
		cfg := remapFlags(fs)
		require.NoError(t, fs.Parse(args))
		return cfg
	}

	assert.NoError(t, parse().validate())
	assert.NoError(t, parse("-xy-precision", "1", "-z-precision", "2").validate())
	assert.Error(t, parse("-xy-precision", "0").validate())
	assert.Error(t, parse("-z-precision", "0").validate())
	assert.Error(t, parse("-z-precision", "-3").validate())
}

func TestParseLog(t *testing.T) {
	log := strings.Join([]string{
		"Grbl 1.1h ['$' for help]",
		"ok",
		"[PRB:0.000,0.000,-1.000:1]",
		"<Idle|MPos:0.000,0.000,0.000|FS:0,0>",
		"ok",
		"  [PRB:10.000,0.000,-0.500:1]  ",
	}, "\n")
	pts, err := parseLog(strings.NewReader(log), grbl.ProbeOffset{X: 1})
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 11.0, pts[1].X)
	assert.Equal(t, -0.5, pts[1].Z)

	_, err = parseLog(strings.NewReader("[PRB:0,0,0:0]\n"), grbl.ProbeOffset{})
	var perr *grbl.ParseError
	assert.ErrorAs(t, err, &perr)

	_, err = parseLog(strings.NewReader("ok\n"), grbl.ProbeOffset{})
	assert.Error(t, err)
}
