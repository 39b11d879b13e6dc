package vehicle

import (
	"math"

	"github.com/cxd309/avsim-engine/internal/geometry"
	"github.com/cxd309/avsim-engine/internal/graph"
	"github.com/cxd309/avsim-engine/internal/kinematics"
	"github.com/cxd309/avsim-engine/internal/perception"
)

// Advance moves the vehicle by one timestep of dt seconds. leader is the
// perceived vehicle ahead, or nil for free flow. It returns true on the one
// call that takes the vehicle into StateArrived.
func (v *Vehicle) Advance(dt float64, leader *perception.Leader) bool {
	if v.state == StateArrived {
		return false
	}
	v.leader = ""
	if leader != nil {
		v.leader = leader.Vehicle
	}

	from := v.position
	switch v.state {
	case StateRunningRoad:
		v.runRoad(dt, leader)
	case StateRunningJoint:
		v.runJoint(dt)
	case StateChangingLane:
		v.changeLane(dt, leader)
	}

	speed, err := v.Velocity()
	if err != nil {
		speed = v.speed
	}
	v.trip.record(dt, from, v.position, speed)

	if v.state == StateArrived {
		v.trip.finish(v.position)
		v.logger.Info("vehicle arrived",
			"destination", v.destination.ID, "elapsed", v.trip.elapsed,
			"distance", v.trip.distance, "average_speed", v.trip.averageSpeed())
		return true
	}
	return false
}

// nextSpeed applies the car-following model for dt, reacting to leader.
func (v *Vehicle) nextSpeed(dt float64, leader *perception.Leader) float64 {
	gap, leadV := kinematics.FreeFlow(v.model)
	if leader != nil {
		gap, leadV = leader.Gap, leader.Speed
	}
	return v.model.NextSpeed(v.speed, gap, leadV, dt)
}

func (v *Vehicle) setState(s State) {
	if v.state == s {
		return
	}
	v.state = s
	attrs := []any{"state", s}
	if v.road != nil {
		attrs = append(attrs, "road", v.road.ID, "lane", v.lane)
	}
	if v.nextJoint != nil {
		attrs = append(attrs, "joint", v.nextJoint.ID)
	}
	v.logger.Debug("state change", attrs...)
}

// startRunningRoad enters road from joint on lane. Off-line positions are
// projected onto the lane centre line; the first road snaps to the lane start.
func (v *Vehicle) startRunningRoad(road *graph.Road, lane uint, from *graph.Joint, first bool) {
	edge := road.EdgeIndex(from)
	v.road, v.lane = road, lane
	v.along = road.Along(edge)
	v.nextJoint = road.OtherJoint(from)
	v.roadsTaken = append(v.roadsTaken, road.ID)
	v.arc, v.rotating = nil, false

	start := road.LaneStart(edge, lane)
	if !geometry.OnLine(v.position, start, v.along, v.cfg.OnLineThreshold) {
		v.position = geometry.FootOfPerpendicular(v.position, start, v.along)
	}
	if first {
		v.position = start
	}
	v.heading = geometry.Angle(v.along)

	dest := v.nextJoint.Loc
	v.nextIsParallel = false
	if next := v.route.Peek(); next != nil {
		v.nextLane = v.chooseLane(next)
		arc, err := graph.TurningArc(road, lane, v.nextJoint, next, v.nextLane, v.cfg.RoadsParallelThreshold)
		if err != nil {
			v.logger.Warn("no turning arc at joint, treating as lane change",
				"joint", v.nextJoint.ID, "road", road.ID, "next_road", next.ID, "error", err)
		}
		if arc != nil {
			v.arc = arc
			dest = arc.StartingPoint()
		} else {
			v.nextIsParallel = true
		}
	}

	v.target = start.Dist(dest)
	v.progress = v.target - v.position.Dist(dest)

	v.light = nil
	if l := road.TrafficLight(1 - edge); l != nil && l.Enabled() {
		v.light = l
	}
	v.setState(StateRunningRoad)
}

// chooseLane keeps the current lane index where the next road has it and
// otherwise takes the next road's outermost lane.
func (v *Vehicle) chooseLane(next *graph.Road) uint {
	return min(v.lane, next.Lanes-1)
}

func (v *Vehicle) runRoad(dt float64, leader *perception.Leader) {
	v.speed = v.nextSpeed(dt, leader)
	step := v.speed * dt
	v.position = v.position.Add(v.along.Scale(step))
	v.progress += step
	if v.progress < v.target {
		return
	}

	switch {
	case v.route.Empty():
		v.arc, v.light = nil, nil
		v.setState(StateArrived)
	case v.nextIsParallel:
		v.startChangingLane()
	default:
		v.startRunningJoint()
	}
}

func (v *Vehicle) startRunningJoint() {
	v.position = v.arc.StartingPoint()
	v.heading = v.arc.HeadingAt(v.arc.StartAngle)
	v.angle = v.arc.StartAngle
	v.setState(StateRunningJoint)
}

func (v *Vehicle) runJoint(dt float64) {
	v.angle = v.arc.Step(v.angle, v.cfg.AngularSpeed, dt)
	if v.arc.Finished(v.angle) {
		v.finishArc()
		v.startRunningRoad(v.route.Dequeue(), v.nextLane, v.nextJoint, false)
		return
	}
	v.position = v.arc.PointAt(v.angle)
	v.heading = v.arc.HeadingAt(v.angle)
}

// finishArc snaps to the end of the active arc.
func (v *Vehicle) finishArc() {
	v.position = v.arc.EndingPoint()
	v.heading = v.arc.HeadingAt(v.arc.EndAngle)
}

// targetLane returns the centre line of the lane being changed into.
func (v *Vehicle) targetLane() (geometry.Vec2, geometry.Vec2) {
	next := v.route.Peek()
	edge := next.EdgeIndex(v.nextJoint)
	return next.LaneStart(edge, v.nextLane), next.Along(edge)
}

// enterTargetLane finishes a lane change onto the next road.
func (v *Vehicle) enterTargetLane() {
	v.startRunningRoad(v.route.Dequeue(), v.nextLane, v.nextJoint, false)
}

func (v *Vehicle) startChangingLane() {
	point, dir := v.targetLane()
	if geometry.OnLine(v.position, point, dir, v.cfg.OnLineThreshold) {
		v.enterTargetLane()
		return
	}
	v.arc, v.rotating = nil, false
	v.setState(StateChangingLane)
}

func (v *Vehicle) changeLane(dt float64, leader *perception.Leader) {
	point, dir := v.targetLane()
	if !v.rotating {
		v.tryRotationArc(point, dir, v.cfg.ChangingLaneRadiusThreshold)
	}
	v.speed = v.nextSpeed(dt, leader)
	if v.rotating {
		v.rotateIntoLane(dt)
		return
	}

	// Blend forward: turn toward the lane up to the maximum approach angle.
	wasRight := geometry.IsRightOf(v.position, point, dir)
	front := geometry.Unit(v.heading)
	gap := geometry.AngleBetween(front, dir)
	turn := math.Min(v.cfg.ChangingLaneMaxAngle-gap, v.cfg.AngularSpeedChangingLane*dt)
	if !wasRight {
		turn = -turn
	}
	heading := geometry.NormalizeAngle(v.heading + turn)
	next := v.position.Add(geometry.Unit(heading).Scale(v.speed * dt))
	reached := geometry.OnLine(next, point, dir, v.cfg.OnLineThreshold) ||
		geometry.IsRightOf(next, point, dir) != wasRight
	if !reached {
		v.heading, v.position = heading, next
		return
	}

	// The lane line would be reached this tick: close on the tangent arc from
	// here whatever its radius, so the vehicle never lands at an angle.
	if v.tryRotationArc(point, dir, math.Inf(1)) {
		v.rotateIntoLane(dt)
		return
	}
	v.position = geometry.FootOfPerpendicular(next, point, dir)
	v.enterTargetLane()
}

// tryRotationArc fixes the closing arc once the circle tangent to both the
// heading and the lane line has a radius of at most maxRadius. It reports
// whether the vehicle is now rotating.
func (v *Vehicle) tryRotationArc(point, dir geometry.Vec2, maxRadius float64) bool {
	front := geometry.Unit(v.heading)
	if geometry.IsParallel(dir, front, v.cfg.ChangingLaneParallelThreshold) {
		return false
	}
	meet, err := geometry.Intersection(v.position, front, point, dir)
	if err != nil {
		return false
	}
	center, err := geometry.Intersection(v.position, geometry.Perpendicular(front), meet, geometry.Bisector(front.Neg(), dir))
	if err != nil {
		return false
	}
	radius := center.Dist(v.position)
	if radius > maxRadius {
		return false
	}

	end := geometry.FootOfPerpendicular(center, point, dir)
	v.arc = &geometry.Arc{
		Center:     center,
		Radius:     radius,
		StartAngle: geometry.Angle(v.position.Sub(center)),
		EndAngle:   geometry.Angle(end.Sub(center)),
		Clockwise:  geometry.AngularDifference(front, dir) >= 180,
	}
	v.angle = v.arc.StartAngle
	v.rotating = true
	v.logger.Debug("lane change rotation", "radius", radius, "clockwise", v.arc.Clockwise)
	return true
}

func (v *Vehicle) rotateIntoLane(dt float64) {
	v.angle = v.arc.Step(v.angle, v.cfg.AngularSpeedChangingLane, dt)
	if v.arc.Finished(v.angle) {
		v.finishArc()
		v.enterTargetLane()
		return
	}
	v.position = v.arc.PointAt(v.angle)
	v.heading = v.arc.HeadingAt(v.angle)
}
