package kinematics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allModels() []CarFollowingModel {
	p := DefaultParams()
	return []CarFollowingModel{p.GFM, p.IDM, p.Constant}
}

func TestFreeFlowConvergesMonotonically(t *testing.T) {
	for _, m := range allModels() {
		t.Run(m.Name(), func(t *testing.T) {
			gap, leadV := FreeFlow(m)
			v := 0.0
			for i := 0; i < 2000; i++ {
				next := m.NextSpeed(v, gap, leadV, 0.05)
				require.GreaterOrEqual(t, next, v-1e-12, "step %d", i)
				require.LessOrEqual(t, next, m.DesiredSpeed()+1e-9, "step %d", i)
				v = next
			}
			assert.InDelta(t, m.DesiredSpeed(), v, 1e-3)
		})
	}
}

func TestGFMFreeFlowFromAboveDecreases(t *testing.T) {
	g := DefaultGeneralizedForce()
	gap, leadV := FreeFlow(g)
	v := 8.0
	for i := 0; i < 500; i++ {
		next := g.NextSpeed(v, gap, leadV, 0.1)
		require.LessOrEqual(t, next, v)
		v = next
	}
	assert.InDelta(t, g.V0, v, 1e-3)
}

func TestGFMBrakingNeverExceedsFreeFlow(t *testing.T) {
	g := DefaultGeneralizedForce()
	for _, v := range []float64{0.5, 2, 5, 8} {
		for _, gap := range []float64{0.1, 1, 4, 10, 50} {
			for _, leadV := range []float64{0, v / 2, v - 0.1} {
				closing := g.Acceleration(v, gap, leadV)
				free := g.Acceleration(v, gap, v)
				assert.LessOrEqual(t, closing, free, "v=%g gap=%g leadV=%g", v, gap, leadV)
			}
		}
	}
}

func TestSpeedNeverNegative(t *testing.T) {
	for _, m := range allModels() {
		t.Run(m.Name(), func(t *testing.T) {
			for _, v := range []float64{0, 0.1, 5, 30} {
				for _, gap := range []float64{-5, 0, 0.01, 0.5, 3, 100, math.Inf(1)} {
					for _, leadV := range []float64{0, 5, 40} {
						for _, dt := range []float64{0.01, 0.1, 1, 10} {
							got := m.NextSpeed(v, gap, leadV, dt)
							assert.GreaterOrEqual(t, got, 0.0, "v=%g gap=%g leadV=%g dt=%g", v, gap, leadV, dt)
						}
					}
				}
			}
		})
	}
}

func TestGFMLargeGapHoldsSpeed(t *testing.T) {
	g := DefaultGeneralizedForce()
	assert.InDelta(t, 0, g.Acceleration(5, 50, 5), 1e-9)

	v := 5.0
	for i := 0; i < 100; i++ {
		v = g.NextSpeed(v, 50, 5, 0.02)
	}
	assert.InDelta(t, 5, v, 1e-6)
}

func TestGFMStoppedLeaderAtShortGap(t *testing.T) {
	g := DefaultGeneralizedForce()
	v := 5.0
	prev := v
	for i := 0; i < 1000; i++ {
		v = g.NextSpeed(v, 0.5, 0, 0.02)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, prev)
		prev = v
	}
	assert.Less(t, v, 1e-6)
}

func TestIDMClamp(t *testing.T) {
	m := DefaultIntelligentDriver()
	assert.Equal(t, -m.BMax, m.Acceleration(5, 0, 0))
	assert.Equal(t, -m.BMax, m.Acceleration(5, 0.1, 0))
	assert.InDelta(t, m.AMax, m.Acceleration(0, math.Inf(1), m.V0), 1e-9)
}

func TestConstantAcceleration(t *testing.T) {
	c := DefaultConstantAcceleration()

	// Reaches VMax mid-step and cruises.
	assert.Equal(t, c.VMaxVal, c.NextSpeed(c.VMaxVal-0.1, math.Inf(1), c.VMaxVal, 1))
	assert.Equal(t, c.AAcc, c.Acceleration(0, math.Inf(1), c.VMaxVal))

	// Inside the braking envelope it slows toward the leader's speed.
	assert.InDelta(t, 5-c.ADcc*0.1, c.NextSpeed(5, 2, 0, 0.1), 1e-9)
	assert.Equal(t, -c.ADcc, c.Acceleration(5, 2, 0))
	assert.Equal(t, 2.0, c.NextSpeed(2.1, 0.55, 2, 1))

	// Inside MinGap it stops.
	assert.Equal(t, 0.0, c.NextSpeed(0.2, 0.1, 3, 1))
}

func TestParamsNew(t *testing.T) {
	p := DefaultParams()
	m, err := p.New()
	require.NoError(t, err)
	assert.Equal(t, GFMModelName, m.Name())

	p.Model = "warp"
	_, err = p.New()
	assert.ErrorContains(t, err, `unknown car-following model "warp"`)
}

func TestParamsDecode(t *testing.T) {
	p := DefaultParams()

	m, err := p.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, p.GFM, m)

	m, err = p.Decode(json.RawMessage(`{"model":"gfm","v0":12}`))
	require.NoError(t, err)
	g, ok := m.(GeneralizedForce)
	require.True(t, ok)
	assert.Equal(t, 12.0, g.V0)
	assert.Equal(t, p.GFM.T1, g.T1, "unset fields keep the configured calibration")

	m, err = p.Decode(json.RawMessage(`{"model":"idm","a_max":1.2}`))
	require.NoError(t, err)
	assert.Equal(t, 1.2, m.(IntelligentDriver).AMax)

	m, err = p.Decode(json.RawMessage(`{"model":"constant","v_max":7}`))
	require.NoError(t, err)
	assert.Equal(t, 7.0, m.DesiredSpeed())

	_, err = p.Decode(json.RawMessage(`{"v0":3}`))
	assert.ErrorContains(t, err, "missing")
	_, err = p.Decode(json.RawMessage(`{"model":"teleport"}`))
	assert.ErrorContains(t, err, "unknown")
	_, err = p.Decode(json.RawMessage(`{"model":"gfm","v0":"fast"}`))
	assert.ErrorContains(t, err, "parsing gfm")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.GFM.T1 = 0
	assert.ErrorContains(t, p.Validate(), "gfm.t1 must be positive")

	p = DefaultParams()
	p.Model = IDMModelName
	p.IDM.Delta = -1
	assert.ErrorContains(t, p.Validate(), "idm.delta")

	p = DefaultParams()
	p.Model = ConstantModelName
	p.Constant.ADcc = 0
	assert.ErrorContains(t, p.Validate(), "constant.a_dcc")
}
