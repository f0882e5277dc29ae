package grbl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/bedmesh/coord"
)

// ProbeOffset converts probe tip coordinates to tool coordinates.
type ProbeOffset struct {
	X, Y float64
}

// ParseErrorKind says which rule a probe report broke.
type ParseErrorKind int

const (
	MissingBrackets ParseErrorKind = iota + 1
	FieldCount
	NotProbe
	CoordCount
	BadNumber
	ProbeFailed
)

func (k ParseErrorKind) String() string {
	switch k {
	case MissingBrackets:
		return "missing brackets"
	case FieldCount:
		return "expected 3 ':' separated fields"
	case NotProbe:
		return "not a PRB report"
	case CoordCount:
		return "expected 3 ',' separated coordinates"
	case BadNumber:
		return "invalid coordinate"
	case ProbeFailed:
		return "probe did not make contact"
	}
	return "unknown"
}

// ParseError describes a malformed or failed probe report.
type ParseError struct {
	Line string
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("grbl: bad probe report %q: %s: %v", e.Line, e.Kind, e.Err)
	}
	return fmt.Sprintf("grbl: bad probe report %q: %s", e.Line, e.Kind)
}
func (e *ParseError) Unwrap() error { return e.Err }

// IsProbeLine reports whether line looks like a probe report.
func IsProbeLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "[PRB")
}

func parseCoords(data string) (p coord.Point, kind ParseErrorKind, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, CoordCount, nil
	}
	dst := [3]*float64{&p.X, &p.Y, &p.Z}
	for i, s := range parts {
		*dst[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return p, BadNumber, err
		}
	}
	return p, 0, nil
}

// ParseProbe parses a `[PRB:x,y,z:1]` report and applies off to X and Y.
func ParseProbe(line string, off ProbeOffset) (coord.Point, error) {
	fail := func(kind ParseErrorKind, err error) (coord.Point, error) {
		return coord.Point{}, &ParseError{Line: line, Kind: kind, Err: err}
	}

	data := strings.TrimSpace(line)
	if !strings.HasPrefix(data, "[") || !strings.HasSuffix(data, "]") {
		return fail(MissingBrackets, nil)
	}
	data = data[1 : len(data)-1]

	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return fail(FieldCount, nil)
	}
	if parts[0] != "PRB" {
		return fail(NotProbe, nil)
	}
	p, kind, err := parseCoords(parts[1])
	if kind != 0 {
		return fail(kind, err)
	}
	if parts[2] != "1" {
		return fail(ProbeFailed, nil)
	}

	return p.OffsetXY(off.X, off.Y), nil
}

// ParseProbes parses reports in arrival order, stopping at the first bad one.
func ParseProbes(lines []string, off ProbeOffset) ([]coord.Point, error) {
	res := make([]coord.Point, 0, len(lines))
	for _, l := range lines {
		p, err := ParseProbe(l, off)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}
