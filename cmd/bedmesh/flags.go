package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mastercactapus/bedmesh/machine"
	"github.com/mastercactapus/bedmesh/machine/grbl"
	"github.com/mastercactapus/bedmesh/meshlevel"
	"github.com/mastercactapus/bedmesh/transport"
)

func gridFlags(fs *flag.FlagSet) *machine.ProbeGridOptions {
	opt := &machine.ProbeGridOptions{}
	fs.Float64Var(&opt.XMax, "xmax", 200, "Extent of the sweep along X.")
	fs.Float64Var(&opt.YMax, "ymax", 200, "Extent of the sweep along Y.")
	fs.IntVar(&opt.NX, "nx", 5, "Number of samples along X.")
	fs.IntVar(&opt.NY, "ny", 5, "Number of samples along Y.")
	fs.Float64Var(&opt.FeedRate, "feed", 1000, "Feed rate for XY moves.")
	fs.Float64Var(&opt.ProbeFeedRate, "probe-feed", 100, "Feed rate while probing.")
	fs.Float64Var(&opt.FineFeedRate, "fine-feed", 0, "Feed rate for the fine reference probe (default half of -probe-feed).")
	fs.Float64Var(&opt.ProbeDepth, "depth", -5, "Z to probe towards.")
	fs.Float64Var(&opt.TravelHeight, "travel", 2, "Z to retract to between samples.")
	fs.Float64Var(&opt.SafeHeight, "safe", 25, "Z to rise to before and after the sweep.")
	fs.BoolVar(&opt.Reference, "reference", false, "Zero Z with a coarse and fine probe at the center before sampling.")
	return opt
}

type connFlags struct {
	port   string
	ws     string
	serial transport.PortOptions
	audit  string
}

func newConnFlags(fs *flag.FlagSet) *connFlags {
	c := &connFlags{}
	fs.StringVar(&c.port, "port", "/dev/ttyUSB0", "Serial port of the controller.")
	fs.StringVar(&c.ws, "ws", "", "Websocket URL of the controller, used instead of -port.")
	fs.IntVar(&c.serial.BaudRate, "baud", 115200, "Serial baud rate.")
	fs.StringVar(&c.audit, "audit", "", "Append every non-ack response to this file.")
	return c
}

// openAudit opens the audit log, nil if none was requested.
func (c *connFlags) openAudit() (*os.File, error) {
	if c.audit == "" {
		return nil, nil
	}
	return os.OpenFile(c.audit, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// dial connects to the controller and starts a session.
func (c *connFlags) dial(audit *os.File) (*grbl.Session, error) {
	var rw io.ReadWriteCloser
	var err error
	if c.ws != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		rw, err = transport.DialWebsocket(ctx, c.ws)
		cancel()
	} else {
		rw, err = transport.OpenSerial(c.port, c.serial)
	}
	if err != nil {
		return nil, err
	}

	var cfg grbl.Config
	if audit != nil {
		cfg.Audit = audit
	}
	return grbl.Open(rw, cfg), nil
}

func offsetFlags(fs *flag.FlagSet) *grbl.ProbeOffset {
	off := &grbl.ProbeOffset{}
	fs.Float64Var(&off.X, "probe-x-offset", 0, "Added to reported probe X to get tool X.")
	fs.Float64Var(&off.Y, "probe-y-offset", 0, "Added to reported probe Y to get tool Y.")
	return off
}

// parseCell parses an "xi,yj" grid index. An empty string means none.
func parseCell(s string) (ok bool, xi, yj int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, 0, 0, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return false, 0, 0, fmt.Errorf("invalid grid cell %q: expected xi,yj", s)
	}
	xi, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return false, 0, 0, fmt.Errorf("invalid grid cell %q: %w", s, err)
	}
	yj, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return false, 0, 0, fmt.Errorf("invalid grid cell %q: %w", s, err)
	}
	return true, xi, yj, nil
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

// writeOutput writes data in one piece, to stdout for "" or "-".
func writeOutput(name string, data []byte) error {
	if name == "" || name == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(name); dir != "." {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}
	return os.WriteFile(name, data, 0644)
}

func writeHeightMap(name string, hm *meshlevel.HeightMap) error {
	var buf bytes.Buffer
	err := hm.WriteTSV(&buf)
	if err != nil {
		return err
	}
	return writeOutput(name, buf.Bytes())
}

func readHeightMap(name string) (*meshlevel.HeightMap, error) {
	if name == "" {
		return nil, errors.New("height map file required")
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hm, err := meshlevel.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return hm, nil
}
