package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/history"
	"github.com/mastercactapus/bedmesh/machine"
	"github.com/mastercactapus/bedmesh/machine/grbl"
	"github.com/mastercactapus/bedmesh/meshlevel"
)

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	grid := gridFlags(fs)
	out := fs.String("out", "-", "Program output file.")
	fs.Parse(args)

	plan, err := grid.Plan()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	_, err = plan.WriteTo(&buf)
	if err != nil {
		return err
	}
	return writeOutput(*out, buf.Bytes())
}

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	grid := gridFlags(fs)
	conn := newConnFlags(fs)
	off := offsetFlags(fs)
	out := fs.String("out", "mesh.tsv", "Height map output file.")
	historyDB := fs.String("history", "", "Archive the run in this SQLite database.")
	name := fs.String("name", "", "Name of the run in the archive.")
	fs.Parse(args)

	// fail on bad options before touching the machine
	_, err := grid.Normalize()
	if err != nil {
		return err
	}

	audit, err := conn.openAudit()
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
	}
	sess, err := conn.dial(audit)
	if err != nil {
		return err
	}

	m := machine.NewMachine(sess, *off)
	samples, err := m.ProbeGrid(*grid, func(i int, p coord.Point) {
		log.Printf("sample %d/%d: %s", i+1, grid.NX*grid.NY, p)
	})
	closeErr := sess.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		log.Println("ERROR: close:", closeErr)
	}

	hm, err := meshlevel.New(samples)
	if err != nil {
		return err
	}
	if !hm.IsGrid() {
		log.Printf("WARNING: %d samples do not form a grid", hm.Len())
	}

	if *historyDB != "" {
		err = recordRun(*historyDB, &history.Run{
			Name:   *name,
			Source: conn.source(),
			NX:     grid.NX,
			NY:     grid.NY,
			XMax:   grid.XMax,
			YMax:   grid.YMax,
		}, samples)
		if err != nil {
			return err
		}
	}

	return writeHeightMap(*out, hm)
}

func (c *connFlags) source() string {
	if c.ws != "" {
		return c.ws
	}
	return c.port
}

func recordRun(path string, run *history.Run, samples []coord.Point) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Record(run, samples)
	if err != nil {
		return err
	}
	log.Printf("archived run %s (%d samples)", run.RunID, run.Samples)
	return nil
}

// parseLog extracts probe samples from a captured console log, in order.
func parseLog(r io.Reader, off grbl.ProbeOffset) ([]coord.Point, error) {
	var lines []string
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if grbl.IsProbeLine(line) {
			lines = append(lines, line)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no probe reports found")
	}
	return grbl.ParseProbes(lines, off)
}

func runParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	off := offsetFlags(fs)
	in := fs.String("in", "-", "Console log to read.")
	out := fs.String("out", "mesh.tsv", "Height map output file.")
	fs.Parse(args)

	r, err := openInput(*in)
	if err != nil {
		return err
	}
	defer r.Close()

	samples, err := parseLog(r, *off)
	if err != nil {
		return err
	}
	hm, err := meshlevel.New(samples)
	if err != nil {
		return err
	}
	return writeHeightMap(*out, hm)
}
