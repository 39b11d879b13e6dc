package kinematics

import "math"

// GFMModelName is the JSON discriminator string for the Generalized Force Model.
const GFMModelName = "gfm"

// GeneralizedForce implements CarFollowingModel with the Generalized Force
// Model: a relaxation toward a gap-dependent desired speed, minus a braking
// force that only acts while closing on the leader.
//
// JSON discriminator: "model": "gfm"
type GeneralizedForce struct {
	T      float64 `json:"t" mapstructure:"t"`             // safe time headway, s
	V0     float64 `json:"v0" mapstructure:"v0"`           // desired speed, m/s
	T1     float64 `json:"t1" mapstructure:"t1"`           // acceleration relaxation time, s
	T2     float64 `json:"t2" mapstructure:"t2"`           // braking relaxation time, s
	R      float64 `json:"r" mapstructure:"r"`             // desired-speed decay length, m
	RPrime float64 `json:"r_prime" mapstructure:"r_prime"` // braking decay length, m
	D      float64 `json:"d" mapstructure:"d"`             // minimum gap, m
}

// DefaultGeneralizedForce returns the calibration used for urban traffic.
func DefaultGeneralizedForce() GeneralizedForce {
	return GeneralizedForce{T: 0.74, V0: 5, T1: 2.45, T2: 0.77, R: 1, RPrime: 20, D: 0.5}
}

func (g GeneralizedForce) Name() string { return GFMModelName }

func (g GeneralizedForce) DesiredSpeed() float64 { return g.V0 }

// SafeGap returns the speed-dependent safe distance d + T*v.
func (g GeneralizedForce) SafeGap(v float64) float64 { return g.D + g.T*v }

func (g GeneralizedForce) Acceleration(v, gap, leadV float64) float64 {
	excess := gap - g.SafeGap(v)
	desired := g.V0 * (1 - math.Exp(-excess/g.R))
	a := (desired - v) / g.T1
	if dv := v - leadV; dv > 0 {
		a -= dv / g.T2 * math.Exp(-excess/g.RPrime)
	}
	return a
}

func (g GeneralizedForce) NextSpeed(v, gap, leadV, dt float64) float64 {
	return eulerStep(v, g.Acceleration(v, gap, leadV), dt)
}
