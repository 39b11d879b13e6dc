package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// sweepUntilFinished steps the arc from its start angle and returns the
// number of steps taken before Finished first reports true.
func sweepUntilFinished(a Arc, rate, dt float64) (int, float64) {
	angle := a.StartAngle
	for i := 1; i < 10000; i++ {
		angle = a.Step(angle, rate, dt)
		if a.Finished(angle) {
			return i, angle
		}
	}
	return -1, angle
}

func TestArcFinished(t *testing.T) {
	tests := []struct {
		name  string
		arc   Arc
		steps int
	}{
		{"ccw no wrap", Arc{StartAngle: 10, EndAngle: 100}, 90},
		{"ccw wrap", Arc{StartAngle: 270, EndAngle: 0}, 90},
		{"ccw wrap past zero", Arc{StartAngle: 300, EndAngle: 30}, 90},
		{"cw no wrap", Arc{StartAngle: 90, EndAngle: 0, Clockwise: true}, 90},
		{"cw wrap", Arc{StartAngle: 30, EndAngle: 300, Clockwise: true}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, _ := sweepUntilFinished(tt.arc, 1, 1)
			assert.Equal(t, tt.steps, steps, "completes exactly at the end angle")
			assert.InDelta(t, float64(tt.steps), tt.arc.Sweep(), tol)
		})
	}
}

func TestArcFinishedNotBefore(t *testing.T) {
	ccw := Arc{StartAngle: 270, EndAngle: 0}
	assert.False(t, ccw.Finished(270))
	assert.False(t, ccw.Finished(359.999))
	assert.True(t, ccw.Finished(360))

	cw := Arc{StartAngle: 30, EndAngle: 300, Clockwise: true}
	assert.False(t, cw.Finished(30))
	assert.False(t, cw.Finished(-59.999))
	assert.True(t, cw.Finished(-60))
}

func TestArcPointsAndHeading(t *testing.T) {
	a := Arc{Center: Vec2{100, 0}, Radius: 2, StartAngle: 270, EndAngle: 0}
	s := a.StartingPoint()
	e := a.EndingPoint()
	assert.InDelta(t, 100, s.X, tol)
	assert.InDelta(t, -2, s.Y, tol)
	assert.InDelta(t, 102, e.X, tol)
	assert.InDelta(t, 0, e.Y, tol)

	assert.InDelta(t, 0, a.HeadingAt(270), tol)
	assert.InDelta(t, 90, a.HeadingAt(0), tol)

	cw := Arc{StartAngle: 90, EndAngle: 0, Clockwise: true}
	assert.InDelta(t, 0, cw.HeadingAt(90), tol)
	assert.InDelta(t, 270, cw.HeadingAt(0), tol)
}

func TestArcLength(t *testing.T) {
	a := Arc{Radius: 2, StartAngle: 270, EndAngle: 0}
	assert.InDelta(t, 3.14159265, a.Length(), 1e-6)
}
