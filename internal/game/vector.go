package game

import (
	"math"

	"github.com/golang/geo/r2"
)

// Vec2 is a 2D vector in field units. Y grows downwards, like the screen.
type Vec2 r2.Point

// V is shorthand for Vec2{X: x, Y: y}.
func V(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2(r2.Point(v).Add(r2.Point(o)))
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2(r2.Point(v).Sub(r2.Point(o)))
}

func (v Vec2) Mul(s float64) Vec2 {
	return Vec2(r2.Point(v).Mul(s))
}

func (v Vec2) Div(s float64) Vec2 {
	return Vec2(r2.Point(v).Mul(1 / s))
}

func (v Vec2) Dot(o Vec2) float64 {
	return r2.Point(v).Dot(r2.Point(o))
}

// Cross returns the z component of the 3D cross product, v.X*o.Y - v.Y*o.X.
func (v Vec2) Cross(o Vec2) float64 {
	return r2.Point(v).Cross(r2.Point(o))
}

func (v Vec2) Len() float64 {
	return r2.Point(v).Norm()
}

// Normalize returns the unit vector in v's direction, or the zero vector.
func (v Vec2) Normalize() Vec2 {
	return Vec2(r2.Point(v).Normalize())
}

// Ortho returns v rotated by 90 degrees.
func (v Vec2) Ortho() Vec2 {
	return Vec2(r2.Point(v).Ortho())
}

// ProjectOnto projects v onto the unit vector axis.
func (v Vec2) ProjectOnto(axis Vec2) Vec2 {
	return axis.Mul(v.Dot(axis))
}

func (v Vec2) Midpoint(o Vec2) Vec2 {
	return v.Add(o).Mul(0.5)
}

// IsFinite reports whether both coordinates are neither NaN nor infinite.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Dist returns the distance between two points.
func Dist(a, b Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
