// Package geometry provides the planar vector kernel and circular-arc
// descriptor used to turn road and lane topology into continuous motion.
//
// Angles are in degrees, measured counter-clockwise from the positive x-axis.
package geometry

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrNoIntersection is returned when two lines are parallel or coincident.
var ErrNoIntersection = errors.New("lines do not intersect")

// epsilon is the cross-product magnitude below which two directions are
// treated as parallel when intersecting lines.
const epsilon = 1e-9

// Vec2 is a 2D point or direction in metres.
type Vec2 struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.X * k, v.Y * k} }
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Cross(o Vec2) float64 { return v.X*o.Y - v.Y*o.X }
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }
func (v Vec2) Neg() Vec2 { return Vec2{-v.X, -v.Y} }
func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Rotate returns v rotated counter-clockwise by deg.
func (v Vec2) Rotate(deg float64) Vec2 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec2{v.X*c - v.Y*s, v.X*s + v.Y*c}
}

// Normalized returns the unit vector of v, or the zero vector if v is zero.
func (v Vec2) Normalized() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Unit returns the unit vector pointing at deg.
func Unit(deg float64) Vec2 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec2{c, s}
}

// NormalizeAngle maps deg into [0, 360).
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Angle returns the polar angle of v in [0, 360).
func Angle(v Vec2) float64 {
	return NormalizeAngle(math.Atan2(v.Y, v.X) * 180 / math.Pi)
}

// FromPolar returns the point at radius r and angle deg around center.
func FromPolar(center Vec2, r, deg float64) Vec2 {
	return center.Add(Unit(deg).Scale(r))
}

// AngularDifference returns the counter-clockwise rotation in [0, 360) that
// takes the direction of from onto the direction of to.
func AngularDifference(from, to Vec2) float64 {
	return NormalizeAngle(Angle(to) - Angle(from))
}

// AngleBetween returns the unsigned angle between a and b in [0, 180].
func AngleBetween(a, b Vec2) float64 {
	d := AngularDifference(a, b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// IsParallel reports whether the lines along a and b are parallel within
// tolDeg, regardless of orientation.
func IsParallel(a, b Vec2, tolDeg float64) bool {
	d := AngleBetween(a, b)
	return d <= tolDeg || 180-d <= tolDeg
}

// Perpendicular returns v rotated by +90 degrees.
func Perpendicular(v Vec2) Vec2 {
	return Vec2{-v.Y, v.X}
}

// Bisector returns the unit bisector of the angle between a and b. For
// opposite directions it falls back to the perpendicular of a.
func Bisector(a, b Vec2) Vec2 {
	s := a.Normalized().Add(b.Normalized())
	if s.Len() < epsilon {
		return Perpendicular(a).Normalized()
	}
	return s.Normalized()
}

// Intersection returns the crossing point of the line through p1 along d1
// and the line through p2 along d2.
func Intersection(p1, d1, p2, d2 Vec2) (Vec2, error) {
	den := d1.Cross(d2)
	if math.Abs(den) < epsilon*d1.Len()*d2.Len() || d1.IsZero() || d2.IsZero() {
		return Vec2{}, ErrNoIntersection
	}
	t := p2.Sub(p1).Cross(d2) / den
	return p1.Add(d1.Scale(t)), nil
}

// FootOfPerpendicular projects p onto the line through linePoint along dir.
func FootOfPerpendicular(p, linePoint, dir Vec2) Vec2 {
	u := dir.Normalized()
	return linePoint.Add(u.Scale(p.Sub(linePoint).Dot(u)))
}

// DistanceToLine is the unsigned perpendicular distance from p to the line.
func DistanceToLine(p, linePoint, dir Vec2) float64 {
	return math.Abs(dir.Normalized().Cross(p.Sub(linePoint)))
}

// OnLine reports whether p lies on the line through linePoint along dir,
// within tol metres.
func OnLine(p, linePoint, dir Vec2, tol float64) bool {
	return DistanceToLine(p, linePoint, dir) <= tol
}

// IsRightOf reports whether p lies strictly to the right of the directed
// line through linePoint along dir.
func IsRightOf(p, linePoint, dir Vec2) bool {
	return dir.Cross(p.Sub(linePoint)) < 0
}

// LineString converts a polyline into a simplefeatures LineString. It returns
// false when the points do not form a valid line: fewer than two distinct
// points, or a NaN or infinite coordinate.
func LineString(points []Vec2) (geom.LineString, bool) {
	if len(points) < 2 {
		return geom.LineString{}, false
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, false
	}
	return ls, true
}

// WKT renders a polyline as well-known text, or "" when it is too short.
func WKT(points []Vec2) string {
	ls, ok := LineString(points)
	if !ok {
		return ""
	}
	return ls.AsText()
}

// ParseWKT reads a polyline written by WKT. An empty string yields no points.
func ParseWKT(s string) ([]Vec2, error) {
	if s == "" {
		return nil, nil
	}
	g, err := geom.UnmarshalWKT(s)
	if err != nil {
		return nil, fmt.Errorf("parsing polyline: %w", err)
	}
	ls, ok := g.AsLineString()
	if !ok {
		return nil, fmt.Errorf("parsing polyline: got %s, want LineString", g.Type())
	}
	seq := ls.Coordinates()
	out := make([]Vec2, seq.Length())
	for i := range out {
		c := seq.Get(i)
		out[i] = Vec2{X: c.X, Y: c.Y}
	}
	return out, nil
}
