package meshlevel

import (
	"errors"
	"math"

	"github.com/fogleman/delaunay"

	"github.com/mastercactapus/bedmesh/coord"
)

// Mesh is a triangulated surface over scattered samples.
type Mesh struct {
	min, max  coord.Point
	triangles []coord.Triangle
}

var _ Interpolator = &Mesh{}

func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) < 3 {
		return nil, errors.New("need at least 3 points to create a mesh")
	}

	points2d := make([]delaunay.Point, len(points))
	m := make(map[delaunay.Point]coord.Point, len(points))

	mesh := &Mesh{
		min: coord.Point{X: points[0].X, Y: points[0].Y},
		max: coord.Point{X: points[0].X, Y: points[0].Y},
	}
	var d delaunay.Point
	for i, p := range points {
		mesh.min.X = math.Min(mesh.min.X, p.X)
		mesh.min.Y = math.Min(mesh.min.Y, p.Y)
		mesh.max.X = math.Max(mesh.max.X, p.X)
		mesh.max.Y = math.Max(mesh.max.Y, p.Y)

		d.X = p.X
		d.Y = p.Y
		m[d] = p
		points2d[i] = d
	}

	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		return nil, err
	}

	mesh.triangles = make([]coord.Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i < len(tri.Triangles); i += 3 {
		t := coord.Triangle{
			A: m[tri.Points[tri.Triangles[i]]],
			B: m[tri.Points[tri.Triangles[i+1]]],
			C: m[tri.Points[tri.Triangles[i+2]]],
		}
		if t.Degenerate() {
			continue
		}
		mesh.triangles = append(mesh.triangles, t)
	}
	if len(mesh.triangles) == 0 {
		return nil, errors.New("points are collinear")
	}

	return mesh, nil
}

// Interpolate returns the Z of the triangle plane containing x,y.
func (m *Mesh) Interpolate(x, y float64) (float64, error) {
	if !finite(x) || !finite(y) ||
		x < m.min.X-coord.Epsilon || m.max.X+coord.Epsilon < x ||
		y < m.min.Y-coord.Epsilon || m.max.Y+coord.Epsilon < y {
		return 0, &OutOfDomainError{X: x, Y: y, Min: m.min, Max: m.max}
	}
	for _, t := range m.triangles {
		if !t.ContainsXY(x, y) {
			continue
		}
		return t.Z(x, y), nil
	}

	// inside the bounding box but outside the convex hull
	return 0, &OutOfDomainError{X: x, Y: y, Min: m.min, Max: m.max}
}
