package coord

import (
	"math"
	"strconv"
	"strings"
)

// Point is a single (x, y, z) sample or position.
type Point struct{ X, Y, Z float64 }

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

func (p Point) Cross(op Point) Point {
	return Point{
		p.Y*op.Z - p.Z*op.Y,
		p.Z*op.X - p.X*op.Z,
		p.X*op.Y - p.Y*op.X,
	}
}
func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y + p.Z*op.Z
}

// OffsetXY returns p shifted in the XY plane, Z is untouched.
func (p Point) OffsetXY(dx, dy float64) Point {
	p.X += dx
	p.Y += dy
	return p
}

// SameXY reports whether b lies within tol of p on both planar axes.
func (p Point) SameXY(b Point, tol float64) bool {
	return math.Abs(p.X-b.X) <= tol && math.Abs(p.Y-b.Y) <= tol
}

// LessXY orders points by X, then Y.
func (p Point) LessXY(b Point) bool {
	if p.X != b.X {
		return p.X < b.X
	}
	return p.Y < b.Y
}

func (p Point) String() string {
	return "(" + FormatFloat(p.X, -1) + "," + FormatFloat(p.Y, -1) + "," + FormatFloat(p.Z, -1) + ")"
}

// Round rounds v to prec decimal places.
func Round(v float64, prec int) float64 {
	pow := math.Pow(10, float64(prec))
	r := math.Round(v*pow) / pow
	if r == 0 {
		// no "-0" in output
		return 0
	}
	return r
}

// FormatFloat formats f with at most prec decimals (-1 for the shortest exact
// representation) and without trailing zeros.
func FormatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if prec < 0 {
		return s
	}
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
