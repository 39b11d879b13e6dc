package kinematics

import (
	"math"

	"github.com/samber/lo"
)

// IDMModelName is the JSON discriminator string for the Intelligent Driver Model.
const IDMModelName = "idm"

// IntelligentDriver implements CarFollowingModel with the Intelligent Driver
// Model. The result is clamped to [-BMax, AMax].
//
// JSON discriminator: "model": "idm"
type IntelligentDriver struct {
	AMax     float64 `json:"a_max" mapstructure:"a_max"`         // maximum acceleration, m/s²
	BComfort float64 `json:"b_comfort" mapstructure:"b_comfort"` // comfortable deceleration, m/s² (positive)
	BMax     float64 `json:"b_max" mapstructure:"b_max"`         // emergency deceleration, m/s² (positive)
	V0       float64 `json:"v0" mapstructure:"v0"`               // desired speed, m/s
	MinGap   float64 `json:"min_gap" mapstructure:"min_gap"`     // jam distance, m
	Headway  float64 `json:"headway" mapstructure:"headway"`     // safe time headway, s
	Delta    float64 `json:"delta" mapstructure:"delta"`         // free-road exponent
}

// DefaultIntelligentDriver returns parameters matching the GFM default speed.
func DefaultIntelligentDriver() IntelligentDriver {
	return IntelligentDriver{AMax: 2, BComfort: 4.5, BMax: 9, V0: 5, MinGap: 0.5, Headway: 0.74, Delta: 4}
}

func (m IntelligentDriver) Name() string { return IDMModelName }

func (m IntelligentDriver) DesiredSpeed() float64 { return m.V0 }

func (m IntelligentDriver) Acceleration(v, gap, leadV float64) float64 {
	var acc float64
	if gap <= 0 {
		acc = math.Inf(-1)
	} else {
		sStar := m.MinGap + math.Max(0, v*m.Headway+v*(v-leadV)/2/math.Sqrt(m.AMax*m.BComfort))
		acc = m.AMax * (1 - math.Pow(v/m.V0, m.Delta) - math.Pow(sStar/gap, 2))
	}
	return lo.Clamp(acc, -m.BMax, m.AMax)
}

func (m IntelligentDriver) NextSpeed(v, gap, leadV, dt float64) float64 {
	return eulerStep(v, m.Acceleration(v, gap, leadV), dt)
}
