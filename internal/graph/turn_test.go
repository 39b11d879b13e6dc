package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

func TestTurningArc(t *testing.T) {
	n := mustNetwork(t)
	j, _ := n.Joint("j")
	rw, _ := n.Road("rw")

	tests := []struct {
		name      string
		next      RoadID
		center    geometry.Vec2
		start     float64
		end       float64
		clockwise bool
	}{
		{"left turn", "rn", geometry.Vec2{X: 100, Y: 0}, 270, 0, false},
		{"right turn", "rs", geometry.Vec2{X: 96, Y: -4}, 90, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _ := n.Road(tt.next)
			arc, err := TurningArc(rw, 0, j, next, 0, 10)
			require.NoError(t, err)
			require.NotNil(t, arc)
			assertVec(t, tt.center, arc.Center)
			assert.InDelta(t, 2, arc.Radius, tol)
			assert.InDelta(t, tt.start, arc.StartAngle, 1e-6)
			assert.InDelta(t, tt.end, arc.EndAngle, 1e-6)
			assert.Equal(t, tt.clockwise, arc.Clockwise)

			// The arc ends on the next lane's centre line heading along it.
			edge := next.EdgeIndex(j)
			assert.True(t, geometry.OnLine(arc.EndingPoint(), next.LaneStart(edge, 0), next.Along(edge), 1e-6))
			assert.InDelta(t, geometry.Angle(next.Along(edge)), arc.HeadingAt(arc.EndAngle), 1e-6)
		})
	}
}

func TestTurningArcParallel(t *testing.T) {
	n := mustNetwork(t)
	j, _ := n.Joint("j")
	rw, _ := n.Road("rw")
	re, _ := n.Road("re")

	arc, err := TurningArc(rw, 0, j, re, 1, 10)
	assert.NoError(t, err)
	assert.Nil(t, arc)
}

func TestTurningArcDegenerate(t *testing.T) {
	n := mustNetwork(t)
	j, _ := n.Joint("j")
	rw, _ := n.Road("rw")
	re, _ := n.Road("re")

	// A negative tolerance disables the parallel shortcut, leaving boundary
	// lines that never meet.
	arc, err := TurningArc(rw, 0, j, re, 0, -1)
	assert.Nil(t, arc)
	assert.ErrorIs(t, err, ErrDegenerateJoint)
	assert.ErrorIs(t, err, geometry.ErrNoIntersection)
}

func TestTurningArcWrongJoint(t *testing.T) {
	n := mustNetwork(t)
	west, _ := n.Joint("west")
	rw, _ := n.Road("rw")
	rn, _ := n.Road("rn")

	_, err := TurningArc(rw, 0, west, rn, 0, 10)
	assert.ErrorContains(t, err, "does not join")
}
