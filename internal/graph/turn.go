package graph

import (
	"fmt"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

// TurningArc builds the arc a vehicle follows through joint via when leaving
// cur on curLane and entering next on nextLane. It returns a nil arc and nil
// error when the roads are parallel within parallelTol degrees; the caller
// then treats the transition as a lane change.
//
// The arc is tangent to both lane centre lines. Its centre is where the lane
// boundaries on the inside of the turn cross: the right edges for a clockwise
// (right) turn, the left edges otherwise.
func TurningArc(cur *Road, curLane uint, via *Joint, next *Road, nextLane uint, parallelTol float64) (*geometry.Arc, error) {
	viaCur, viaNext := cur.EdgeIndex(via), next.EdgeIndex(via)
	if viaCur < 0 || viaNext < 0 {
		return nil, fmt.Errorf("joint %q does not join roads %q and %q", via.ID, cur.ID, next.ID)
	}
	if geometry.IsParallel(cur.Along(0), next.Along(0), parallelTol) {
		return nil, nil
	}

	curEdge := 1 - viaCur
	curDir, nextDir := cur.Along(curEdge), next.Along(viaNext)
	clockwise := geometry.AngularDifference(curDir, nextDir) >= 180

	var p1, p2 geometry.Vec2
	if clockwise {
		p1, p2 = cur.RightPoint(curEdge, curLane), next.RightPoint(viaNext, nextLane)
	} else {
		p1, p2 = cur.LeftPoint(curEdge, curLane), next.LeftPoint(viaNext, nextLane)
	}
	center, err := geometry.Intersection(p1, curDir, p2, nextDir)
	if err != nil {
		return nil, fmt.Errorf("%w at %q between %q and %q: %w", ErrDegenerateJoint, via.ID, cur.ID, next.ID, err)
	}

	start := geometry.FootOfPerpendicular(center, cur.LaneStart(curEdge, curLane), curDir)
	end := geometry.FootOfPerpendicular(center, next.LaneStart(viaNext, nextLane), nextDir)
	return &geometry.Arc{
		Center:     center,
		Radius:     start.Dist(center),
		StartAngle: geometry.Angle(start.Sub(center)),
		EndAngle:   geometry.Angle(end.Sub(center)),
		Clockwise:  clockwise,
	}, nil
}
