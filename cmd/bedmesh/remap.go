package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"

	"github.com/mastercactapus/bedmesh/coord"
	"github.com/mastercactapus/bedmesh/meshlevel"
)

type remapConfig struct {
	meshlevel.RemapOptions

	// MachineX and MachineY shift the height map.
	MachineX, MachineY float64

	// Reference is the "xi,yj" cell zeroed before remapping, empty for none.
	Reference string
}

func remapFlags(fs *flag.FlagSet) *remapConfig {
	cfg := &remapConfig{}
	fs.Float64Var(&cfg.OffsetX, "x-offset", 0, "Offset added to toolpath X.")
	fs.Float64Var(&cfg.OffsetY, "y-offset", 0, "Offset added to toolpath Y.")
	fs.Float64Var(&cfg.MachineX, "machine-x-offset", 0, "Offset added to height map X.")
	fs.Float64Var(&cfg.MachineY, "machine-y-offset", 0, "Offset added to height map Y.")
	fs.IntVar(&cfg.XYPrecision, "xy-precision", 3, "Decimals kept in rewritten X and Y.")
	fs.IntVar(&cfg.ZPrecision, "z-precision", 4, "Decimals kept in rewritten Z.")
	fs.StringVar(&cfg.Reference, "zero", "0,0", "Grid cell xi,yj used as the tool touch-off reference (empty to keep Z as measured).")
	return cfg
}

// validate rejects precisions the remapper would replace with its defaults.
func (cfg remapConfig) validate() error {
	if cfg.XYPrecision < 1 {
		return fmt.Errorf("invalid -xy-precision %d: must be at least 1", cfg.XYPrecision)
	}
	if cfg.ZPrecision < 1 {
		return fmt.Errorf("invalid -z-precision %d: must be at least 1", cfg.ZPrecision)
	}
	return nil
}

// prepare shifts and re-zeroes hm for remapping.
func (cfg remapConfig) prepare(hm *meshlevel.HeightMap) (*meshlevel.HeightMap, error) {
	ok, xi, yj, err := parseCell(cfg.Reference)
	if err != nil {
		return nil, err
	}
	hm, err = hm.Translate(cfg.MachineX, cfg.MachineY)
	if err != nil {
		return nil, err
	}
	if !ok {
		return hm, nil
	}
	if !hm.IsGrid() {
		log.Printf("WARNING: scattered height map, ignoring reference cell %s", cfg.Reference)
		return hm, nil
	}
	return hm.Rezero(xi, yj)
}

// remapSurface returns the corrections followed by the surface at every
// height map node, Z rounded to prec.
func remapSurface(hm *meshlevel.HeightMap, corrections []coord.Point, prec int) ([]coord.Point, error) {
	nodes, err := hm.Surface(hm.Points())
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i].Z = coord.Round(nodes[i].Z, prec)
	}
	return append(corrections, nodes...), nil
}

func runRemap(args []string) error {
	fs := flag.NewFlagSet("remap", flag.ExitOnError)
	cfg := remapFlags(fs)
	in := fs.String("in", "-", "Toolpath to read.")
	out := fs.String("out", "-", "Corrected toolpath output file.")
	meshFile := fs.String("mesh", "mesh.tsv", "Height map to apply.")
	pointsFile := fs.String("points", "", "Also write the corrections and surface nodes to this TSV file.")
	fs.Parse(args)

	err := cfg.validate()
	if err != nil {
		return err
	}
	hm, err := readHeightMap(*meshFile)
	if err != nil {
		return err
	}
	hm, err = cfg.prepare(hm)
	if err != nil {
		return err
	}

	r, err := openInput(*in)
	if err != nil {
		return err
	}
	defer r.Close()

	var buf bytes.Buffer
	corrections, err := meshlevel.Remap(r, &buf, hm, cfg.RemapOptions)
	if err != nil {
		return err
	}
	log.Printf("corrected %d Z words", len(corrections))

	var pts bytes.Buffer
	if *pointsFile != "" {
		surface, err := remapSurface(hm, corrections, cfg.ZPrecision)
		if err != nil {
			return err
		}
		err = meshlevel.WritePointsTSV(&pts, surface)
		if err != nil {
			return err
		}
	}

	err = writeOutput(*out, buf.Bytes())
	if err != nil {
		return err
	}
	if *pointsFile != "" {
		return writeOutput(*pointsFile, pts.Bytes())
	}
	return nil
}

func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	a := fs.String("a", "", "Height map to subtract from.")
	b := fs.String("b", "", "Height map to subtract.")
	out := fs.String("out", "-", "Difference output file.")
	fs.Parse(args)

	hmA, err := readHeightMap(*a)
	if err != nil {
		return err
	}
	hmB, err := readHeightMap(*b)
	if err != nil {
		return err
	}

	d, err := meshlevel.Diff(hmA, hmB)
	if err != nil {
		return err
	}
	return writeHeightMap(*out, d)
}
