package meshlevel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mastercactapus/bedmesh/coord"
)

var tsvHeader = []string{"x", "y", "z"}

// ReadTSV loads a height map from a tab separated table with x, y and z
// columns. Columns are found by header name; others are ignored.
func ReadTSV(r io.Reader) (*HeightMap, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("meshlevel: empty height map table")
	}
	if err != nil {
		return nil, fmt.Errorf("meshlevel: read header: %w", err)
	}

	cols := make([]int, len(tsvHeader))
	for i, name := range tsvHeader {
		cols[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				cols[i] = j
				break
			}
		}
		if cols[i] == -1 {
			return nil, fmt.Errorf("meshlevel: missing %q column in header %q", name, header)
		}
	}

	var pts []coord.Point
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("meshlevel: %w", err)
		}
		line, _ := cr.FieldPos(0)

		var p coord.Point
		dst := [3]*float64{&p.X, &p.Y, &p.Z}
		for i, c := range cols {
			if c >= len(rec) {
				return nil, fmt.Errorf("meshlevel: line %d: missing %q value", line, tsvHeader[i])
			}
			*dst[i], err = strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("meshlevel: line %d: %s: %w", line, tsvHeader[i], err)
			}
			if !finite(*dst[i]) {
				return nil, fmt.Errorf("meshlevel: line %d: %s: non-finite value %q", line, tsvHeader[i], rec[c])
			}
		}
		pts = append(pts, p)
	}

	return New(pts)
}

// WriteTSV writes the samples in canonical order. Values use the shortest
// representation that reads back exactly.
func (hm *HeightMap) WriteTSV(w io.Writer) error {
	return writeTSV(w, hm.points)
}

// WritePointsTSV writes points in the height map table format.
func WritePointsTSV(w io.Writer, points []coord.Point) error {
	return writeTSV(w, points)
}

func writeTSV(w io.Writer, points []coord.Point) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	err := cw.Write(tsvHeader)
	if err != nil {
		return err
	}
	rec := make([]string, 3)
	for _, p := range points {
		rec[0] = coord.FormatFloat(p.X, -1)
		rec[1] = coord.FormatFloat(p.Y, -1)
		rec[2] = coord.FormatFloat(p.Z, -1)
		err = cw.Write(rec)
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
