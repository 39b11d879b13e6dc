// Package kinematics defines the CarFollowingModel interface that turns a
// vehicle's speed and its leader's gap and speed into the next speed, along
// with built-in implementations.
//
// Adding a new model requires only implementing CarFollowingModel and
// registering it in Params.Decode; the motion controller never needs to change.
package kinematics

import "math"

// CarFollowingModel is the speed contract every car-following implementation
// must satisfy. Distances are in metres, speeds in m/s and time in seconds.
type CarFollowingModel interface {
	// Name returns the JSON discriminator of the model.
	Name() string

	// DesiredSpeed is the free-flow speed the model converges to with no leader.
	DesiredSpeed() float64

	// Acceleration returns the instantaneous acceleration at speed v, with a
	// leader gap metres away travelling at leadV.
	Acceleration(v, gap, leadV float64) float64

	// NextSpeed advances v over dt seconds. The result is never negative.
	NextSpeed(v, gap, leadV, dt float64) float64
}

// FreeFlow returns the gap and leader speed that stand in for "no leader":
// an infinite gap and a leader already at the model's desired speed.
func FreeFlow(m CarFollowingModel) (gap, leadV float64) {
	return math.Inf(1), m.DesiredSpeed()
}

// eulerStep is the explicit update shared by the continuous models.
func eulerStep(v, a, dt float64) float64 {
	return math.Max(0, v+a*dt)
}
