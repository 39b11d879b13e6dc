package kinematics

import "math"

// ConstantModelName is the JSON discriminator string for the Constant model.
const ConstantModelName = "constant"

// ConstantAcceleration implements CarFollowingModel using fixed acceleration
// and deceleration rates. It brakes toward the leader's speed once the gap
// falls inside its braking envelope plus MinGap, and toward a stop once the
// gap is inside MinGap.
//
// JSON discriminator: "model": "constant"
type ConstantAcceleration struct {
	AAcc    float64 `json:"a_acc" mapstructure:"a_acc"`     // traction acceleration, m/s²
	ADcc    float64 `json:"a_dcc" mapstructure:"a_dcc"`     // service braking deceleration, m/s² (positive)
	VMaxVal float64 `json:"v_max" mapstructure:"v_max"`     // maximum speed, m/s
	MinGap  float64 `json:"min_gap" mapstructure:"min_gap"` // standstill gap, m
}

// DefaultConstantAcceleration returns moderate urban rates.
func DefaultConstantAcceleration() ConstantAcceleration {
	return ConstantAcceleration{AAcc: 1.5, ADcc: 3, VMaxVal: 5, MinGap: 0.5}
}

func (c ConstantAcceleration) Name() string { return ConstantModelName }

func (c ConstantAcceleration) DesiredSpeed() float64 { return c.VMaxVal }

// BrakingDistanceTo returns the distance needed to decelerate from v to targetV.
// Returns 0 if v ≤ targetV.
func (c ConstantAcceleration) BrakingDistanceTo(v, targetV float64) float64 {
	if c.ADcc <= 0 {
		return math.Inf(1)
	}
	if v <= targetV {
		return 0
	}
	return (v*v - targetV*targetV) / (2 * c.ADcc)
}

// target picks the speed to steer toward and whether that requires braking.
func (c ConstantAcceleration) target(v, gap, leadV float64) (float64, bool) {
	switch {
	case gap <= c.MinGap:
		return 0, true
	case gap-c.MinGap <= c.BrakingDistanceTo(v, leadV):
		return math.Max(0, leadV), true
	case v > c.VMaxVal:
		return c.VMaxVal, true
	}
	return c.VMaxVal, false
}

func (c ConstantAcceleration) Acceleration(v, gap, leadV float64) float64 {
	targetV, braking := c.target(v, gap, leadV)
	switch {
	case braking && v > targetV:
		return -c.ADcc
	case !braking && v < targetV:
		return c.AAcc
	}
	return 0
}

func (c ConstantAcceleration) NextSpeed(v, gap, leadV, dt float64) float64 {
	targetV, braking := c.target(v, gap, leadV)
	if braking {
		return math.Max(0, c.decelerateStep(v, targetV, dt))
	}
	return c.accelerateStep(v, targetV, dt)
}

// accelerateStep advances v toward targetV over dt seconds, stopping at
// targetV if it is reached mid-step.
func (c ConstantAcceleration) accelerateStep(v, targetV, dt float64) float64 {
	if c.AAcc <= 0 || v >= targetV {
		return v
	}
	if (targetV-v)/c.AAcc <= dt {
		return targetV
	}
	return v + c.AAcc*dt
}

// decelerateStep brakes v toward targetV (≥ 0) over dt seconds, stopping at
// targetV if it is reached mid-step.
func (c ConstantAcceleration) decelerateStep(v, targetV, dt float64) float64 {
	if c.ADcc <= 0 || v <= targetV {
		return v
	}
	if (v-targetV)/c.ADcc <= dt {
		return targetV
	}
	return v - c.ADcc*dt
}
