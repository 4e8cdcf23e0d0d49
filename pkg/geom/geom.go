// Package geom provides the 2D point and vector math used to lay out hosts and steer packets.
package geom

import "math"

// Point is a position on screen.
type Point struct {
	X, Y float64
}

// Vector is a displacement or velocity.
type Vector struct {
	X, Y float64
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Distance returns the distance from p to q.
func (p Point) Distance(q Point) float64 {
	return Distance(p, q)
}

// UnitVector returns the normalized direction from a to b.
// When a == b the result is not finite; callers must guard that case.
func UnitVector(a, b Point) Vector {
	dx, dy := b.X-a.X, b.Y-a.Y
	mag := math.Sqrt(dx*dx + dy*dy)
	return Vector{X: dx / mag, Y: dy / mag}
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// BezierPoint evaluates the quadratic Bezier curve p0-p1-p2 at t in [0,1].
func BezierPoint(p0, p1, p2 Point, t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
		Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
	}
}

// CirclePoint returns the point at angle (radians) on the circle around center.
func CirclePoint(center Point, angle, radius float64) Point {
	return Point{X: center.X + radius*math.Cos(angle), Y: center.Y + radius*math.Sin(angle)}
}

// Add translates p by v.
func (p Point) Add(v Vector) Point {
	return Point{X: p.X + v.X, Y: p.Y + v.Y}
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Vector {
	return Vector{X: p.X - q.X, Y: p.Y - q.Y}
}

// Len returns the magnitude of v.
func (v Vector) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Unit returns v normalized to length 1. The zero vector yields a non-finite result.
func (v Vector) Unit() Vector {
	l := math.Sqrt(v.X*v.X + v.Y*v.Y)
	return Vector{X: v.X / l, Y: v.Y / l}
}

// Scale multiplies v by k.
func (v Vector) Scale(k float64) Vector {
	return Vector{X: v.X * k, Y: v.Y * k}
}

// Rotate turns v counter-clockwise by angle radians.
func (v Vector) Rotate(angle float64) Vector {
	sin, cos := math.Sincos(angle)
	return Vector{X: v.X*cos - v.Y*sin, Y: v.X*sin + v.Y*cos}
}

// Dot is the scalar product of u and v.
func Dot(u, v Vector) float64 {
	return u.X*v.X + u.Y*v.Y
}

// Cross is the z component of the 3D cross product of u and v.
func Cross(u, v Vector) float64 {
	return u.X*v.Y - u.Y*v.X
}

// SignedAngle returns the angle that rotates v onto u, i.e. -atan2(u×v, u·v).
func SignedAngle(u, v Vector) float64 {
	return -math.Atan2(Cross(u, v), Dot(u, v))
}
