package units

import "math"

// Point is a planar position or vector in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Direction returns the unit vector pointing along angle (radians).
func Direction(angleRad float64) Point {
	return Point{X: math.Cos(angleRad), Y: math.Sin(angleRad)}
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

func (p Point) Scale(s float64) Point { return Point{X: p.X * s, Y: p.Y * s} }

func (p Point) Mag() float64 { return math.Hypot(p.X, p.Y) }

func (p Point) DistTo(q Point) float64 { return p.Sub(q).Mag() }

// NearlyEqual compares both coordinates within tol.
func (p Point) NearlyEqual(q Point, tol float64) bool {
	return math.Abs(p.X-q.X) <= tol && math.Abs(p.Y-q.Y) <= tol
}

// IsFinite reports whether both coordinates are neither NaN nor ±Inf.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
