package lipm

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOmega(t *testing.T) {
	assert.InDelta(t, math.Sqrt(9.81/0.53), Omega(0.53), 1e-12)
}

func TestStableDCMModelConverges(t *testing.T) {
	m := NewStableDCMModel(Omega(0.53), 0.016)
	m.Reset(mgl64.Vec2{0, 0})

	target := mgl64.Vec2{0.3, -0.1}
	for i := 0; i < 2000; i++ {
		require.NoError(t, m.Integrate(target))
	}
	assert.InDelta(t, target.X(), m.ComPosition().X(), 1e-3)
	assert.InDelta(t, target.Y(), m.ComPosition().Y(), 1e-3)
	assert.InDelta(t, 0, m.ComVelocity().Len(), 1e-2)
}

func TestStableDCMModelNeedsReset(t *testing.T) {
	m := NewStableDCMModel(Omega(0.53), 0.016)
	assert.Error(t, m.Integrate(mgl64.Vec2{}))
}

func TestReactiveControllerLaw(t *testing.T) {
	omega := Omega(0.53)
	k := 1.2
	c := NewReactiveDCMController(k, omega)

	dcm := mgl64.Vec2{0.10, 0.02}
	ref := Reference{
		Position: mgl64.Vec2{0.12, 0.00},
		Velocity: mgl64.Vec2{0.30, 0.00},
	}
	c.SetFeedback(dcm)
	c.SetReference(ref)
	require.NoError(t, c.Evaluate())

	want := dcm.Sub(ref.Velocity.Add(ref.Position.Sub(dcm).Mul(k)).Mul(1 / omega))
	assert.InDelta(t, want.X(), c.Output().X(), 1e-12)
	assert.InDelta(t, want.Y(), c.Output().Y(), 1e-12)
}

func TestReactiveControllerNeedsFeedback(t *testing.T) {
	c := NewReactiveDCMController(1.0, Omega(0.53))
	assert.Error(t, c.Evaluate())
}

func TestReactiveControllerStabilizesDCM(t *testing.T) {
	// Closed loop on the true DCM dynamics: a constant reference must
	// pull a disturbed DCM back onto it.
	omega := Omega(0.53)
	dT := 0.016
	c := NewReactiveDCMController(1.5, omega)
	ref := Reference{Position: mgl64.Vec2{0.1, 0}, Velocity: mgl64.Vec2{}}

	dcm := mgl64.Vec2{0.22, 0}
	for i := 0; i < 1500; i++ {
		c.SetFeedback(dcm)
		c.SetReference(ref)
		require.NoError(t, c.Evaluate())
		zmp := c.Output()
		dcm = dcm.Add(dcm.Sub(zmp).Mul(omega * dT))
	}
	assert.InDelta(t, 0.1, dcm.X(), 1e-3)
}

func TestPredictiveControllerZeroErrorZeroOutput(t *testing.T) {
	c, err := NewPredictiveDCMController(16, 10.0, 1.0, Omega(0.53), 0.016)
	require.NoError(t, err)

	horizon := make([]mgl64.Vec2, 16)
	c.SetFeedback(mgl64.Vec2{})
	c.SetReference(Reference{
		Horizon: horizon,
		Support: SupportRect{MinX: -1, MaxX: 1, MinY: -1, MaxY: 1},
	})
	require.NoError(t, c.Evaluate())
	assert.InDelta(t, 0, c.Output().X(), 1e-9)
	assert.InDelta(t, 0, c.Output().Y(), 1e-9)
}

func TestPredictiveControllerRespectsSupportRect(t *testing.T) {
	c, err := NewPredictiveDCMController(8, 10.0, 1.0, Omega(0.53), 0.016)
	require.NoError(t, err)

	// Zero tracking error but a support rectangle away from the
	// unconstrained optimum: the commanded ZMP clamps to its edge.
	horizon := make([]mgl64.Vec2, 8)
	c.SetFeedback(mgl64.Vec2{})
	c.SetReference(Reference{
		Horizon: horizon,
		Support: SupportRect{MinX: 0.05, MaxX: 0.2, MinY: -1, MaxY: 1},
	})
	require.NoError(t, c.Evaluate())
	assert.InDelta(t, 0.05, c.Output().X(), 1e-9)
}

func TestPredictiveControllerShortHorizonPadded(t *testing.T) {
	c, err := NewPredictiveDCMController(16, 10.0, 1.0, Omega(0.53), 0.016)
	require.NoError(t, err)

	c.SetFeedback(mgl64.Vec2{0.1, 0})
	c.SetReference(Reference{
		Horizon: []mgl64.Vec2{{0.1, 0}, {0.1, 0}},
		Support: SupportRect{MinX: -1, MaxX: 1, MinY: -1, MaxY: 1},
	})
	assert.NoError(t, c.Evaluate())
}

func TestPredictiveControllerValidation(t *testing.T) {
	_, err := NewPredictiveDCMController(1, 10.0, 1.0, Omega(0.53), 0.016)
	assert.Error(t, err)

	c, err := NewPredictiveDCMController(4, 10.0, 1.0, Omega(0.53), 0.016)
	require.NoError(t, err)
	assert.Error(t, c.Evaluate()) // no feedback, no horizon
}

func TestZMPControllerLawAndPhases(t *testing.T) {
	stance := ZMPControllerGains{KZmp: 0.6, KCom: 5.0}
	walking := ZMPControllerGains{KZmp: 1.0, KCom: 4.0}
	dT := 0.016
	c := NewZMPController(stance, walking, dT)
	c.Reset(mgl64.Vec2{0.01, 0})

	zmpDes := mgl64.Vec2{0.02, 0}
	zmpMeas := mgl64.Vec2{0.00, 0}
	comDes := mgl64.Vec2{0.015, 0}
	comMeas := mgl64.Vec2{0.010, 0}
	comVelDes := mgl64.Vec2{0.1, 0}

	c.SetPhase(false)
	c.SetFeedback(zmpMeas, comMeas)
	c.SetReference(zmpDes, comDes, comVelDes)
	require.NoError(t, c.Evaluate())

	_, vel := c.Output()
	want := comVelDes.
		Sub(zmpDes.Sub(zmpMeas).Mul(walking.KZmp)).
		Add(comDes.Sub(comMeas).Mul(walking.KCom))
	assert.InDelta(t, want.X(), vel.X(), 1e-12)

	pos, _ := c.Output()
	assert.InDelta(t, 0.01+want.X()*dT, pos.X(), 1e-12)

	// Stance gains change the correction for the same inputs.
	c.Reset(mgl64.Vec2{0.01, 0})
	c.SetPhase(true)
	c.SetFeedback(zmpMeas, comMeas)
	c.SetReference(zmpDes, comDes, comVelDes)
	require.NoError(t, c.Evaluate())
	_, stanceVel := c.Output()
	assert.Greater(t, math.Abs(want.X()-stanceVel.X()), 1e-9)
}

func TestZMPControllerNeedsReset(t *testing.T) {
	c := NewZMPController(ZMPControllerGains{1, 1}, ZMPControllerGains{1, 1}, 0.016)
	assert.Error(t, c.Evaluate())
}

func TestStancePhaseThresholdIsSmall(t *testing.T) {
	assert.Less(t, StancePhaseThreshold, 1e-2)
}
