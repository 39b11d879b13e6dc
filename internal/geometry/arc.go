package geometry

import "math"

// Arc is a circular trajectory swept from StartAngle to EndAngle around
// Center. Angles are polar angles of (point - Center).
type Arc struct {
	Center     Vec2    `json:"center"`
	Radius     float64 `json:"radius"`
	StartAngle float64 `json:"start_angle"` // degrees
	EndAngle   float64 `json:"end_angle"`   // degrees
	Clockwise  bool    `json:"clockwise"`
}

// StartingPoint is the point at StartAngle.
func (a Arc) StartingPoint() Vec2 { return FromPolar(a.Center, a.Radius, a.StartAngle) }

// EndingPoint is the point at EndAngle.
func (a Arc) EndingPoint() Vec2 { return FromPolar(a.Center, a.Radius, a.EndAngle) }

// PointAt returns the point on the circle at angle.
func (a Arc) PointAt(angle float64) Vec2 { return FromPolar(a.Center, a.Radius, angle) }

// HeadingAt returns the direction of travel, tangent to the circle, at angle.
func (a Arc) HeadingAt(angle float64) float64 {
	if a.Clockwise {
		return NormalizeAngle(angle - 90)
	}
	return NormalizeAngle(angle + 90)
}

// Step advances angle by rate*dt degrees in the arc's rotation sense. The
// result is not normalised so that Finished can follow a sweep across 0.
func (a Arc) Step(angle, rate, dt float64) float64 {
	if a.Clockwise {
		return angle - rate*dt
	}
	return angle + rate*dt
}

// crossesAxis reports whether the sweep passes the positive x-axis.
func (a Arc) crossesAxis() bool {
	if a.Clockwise {
		return a.StartAngle <= a.EndAngle
	}
	return a.StartAngle >= a.EndAngle
}

// Finished reports whether an angle reached by repeated Step calls from
// StartAngle has reached or passed EndAngle.
func (a Arc) Finished(angle float64) bool {
	if a.Clockwise {
		if a.crossesAxis() {
			return angle <= a.EndAngle-360
		}
		return angle <= a.EndAngle
	}
	if a.crossesAxis() {
		return angle >= a.EndAngle+360
	}
	return angle >= a.EndAngle
}

// Sweep returns the total swept angle in degrees, in (0, 360].
func (a Arc) Sweep() float64 {
	if a.crossesAxis() {
		return 360 - math.Abs(a.EndAngle-a.StartAngle)
	}
	return math.Abs(a.EndAngle - a.StartAngle)
}

// Length returns the arc length of the full sweep.
func (a Arc) Length() float64 {
	return a.Radius * a.Sweep() * math.Pi / 180
}
