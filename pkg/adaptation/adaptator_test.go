package adaptation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGains() Gains {
	return Gains{Zmp: 1.0, Offset: 0.5, Sigma: 5.0, Coupling: 10.0}
}

func testTolerances() Tolerances {
	return Tolerances{Zmp: 0.05, Duration: 0.2}
}

// nominalScenario builds a disturbance-free tick: the measured DCM sits
// exactly on the nominal LIP orbit (the touchdown DCM discounted back by
// sigma), so the nominal point satisfies the touchdown equality and
// minimizes every cost term at once.
func nominalScenario() (Problem, Measured) {
	omega := math.Sqrt(9.81 / 0.6)
	duration := 0.5
	sigma := math.Exp(omega * duration)
	nextPos := 0.5
	offset := nextPos / (sigma - 1)

	p := Problem{
		NominalNextPosition: nextPos,
		NominalSigma:        sigma,
		NominalDCMOffset:    offset,
		NominalNextDCM:      nextPos + offset,
		Omega:               omega,
	}
	m := Measured{
		Zmp: 0,
		Dcm: (nextPos + offset) / sigma,
	}
	return p, m
}

func TestGainValidation(t *testing.T) {
	_, err := New(Gains{Zmp: 0, Offset: 1, Sigma: 1, Coupling: 1}, testTolerances())
	assert.Error(t, err)

	_, err = New(testGains(), Tolerances{Zmp: 0.05, Duration: 0})
	assert.Error(t, err)
}

func TestColdStart(t *testing.T) {
	a, err := New(testGains(), testTolerances())
	require.NoError(t, err)

	p, m := nominalScenario()
	require.NoError(t, a.Solve(p, m))

	z, err := a.NextStepPosition()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, z, 1e-6)

	// Without a disturbance the whole nominal solution comes back
	// untouched, nothing saturates against the tolerance bounds.
	sigma, err := a.Sigma()
	require.NoError(t, err)
	assert.InDelta(t, p.NominalSigma, sigma, 1e-6)

	delta, err := a.DCMOffset()
	require.NoError(t, err)
	assert.InDelta(t, p.NominalDCMOffset, delta, 1e-6)

	now := 2.0
	dsDuration := 0.3
	impact, err := a.ImpactTime(now, dsDuration)
	require.NoError(t, err)
	assert.InDelta(t, now+0.5-dsDuration/2, impact, 1e-6)
}

func TestEqualitySatisfied(t *testing.T) {
	a, err := New(testGains(), testTolerances())
	require.NoError(t, err)

	p, m := nominalScenario()
	m.Dcm += 0.03 // push the state off the orbit
	require.NoError(t, a.Solve(p, m))

	z, err := a.NextStepPosition()
	require.NoError(t, err)
	sigma, err := a.Sigma()
	require.NoError(t, err)
	delta, err := a.DCMOffset()
	require.NoError(t, err)

	lhs := z + ((m.Zmp+m.Offset)-m.Dcm-m.Offset/2)*sigma + delta
	assert.InDelta(t, m.Offset/2+m.Zmp, lhs, 1e-6)
}

func TestSigmaTimeRoundTrip(t *testing.T) {
	omega := math.Sqrt(9.81 / 0.53)
	duration := 0.8
	sigma := math.Exp(omega * duration)
	assert.InDelta(t, duration, math.Log(sigma)/omega, 1e-12)
}

func TestDisturbanceBoundedByTolerance(t *testing.T) {
	a, err := New(testGains(), testTolerances())
	require.NoError(t, err)

	p, m := nominalScenario()
	m.Dcm += 0.12
	require.NoError(t, a.Solve(p, m))

	z, err := a.NextStepPosition()
	require.NoError(t, err)
	assert.Greater(t, math.Abs(z-p.NominalNextPosition), 1e-9)
	assert.LessOrEqual(t, math.Abs(z-p.NominalNextPosition), testTolerances().Zmp+1e-9)
}

func TestDurationBoundsRespected(t *testing.T) {
	a, err := New(testGains(), testTolerances())
	require.NoError(t, err)

	p, m := nominalScenario()
	m.Dcm -= 0.1
	require.NoError(t, a.Solve(p, m))

	sigma, err := a.Sigma()
	require.NoError(t, err)
	nominalDuration := math.Log(p.NominalSigma) / p.Omega
	lo := math.Exp((nominalDuration - testTolerances().Duration) * p.Omega)
	hi := math.Exp((nominalDuration + testTolerances().Duration) * p.Omega)
	assert.GreaterOrEqual(t, sigma, lo-1e-9)
	assert.LessOrEqual(t, sigma, hi+1e-9)
}

func TestRepeatedSolvesReuseEngine(t *testing.T) {
	a, err := New(testGains(), testTolerances())
	require.NoError(t, err)

	p, m := nominalScenario()
	for i := 0; i < 5; i++ {
		m.Dcm += 0.005
		require.NoError(t, a.Solve(p, m))
	}
}

func TestInvalidTickInputs(t *testing.T) {
	a, err := New(testGains(), testTolerances())
	require.NoError(t, err)

	p, m := nominalScenario()
	p.Omega = 0
	assert.Error(t, a.Solve(p, m))

	p, m = nominalScenario()
	p.NominalSigma = 0.9
	assert.Error(t, a.Solve(p, m))

	_, err = a.NextStepPosition()
	assert.Error(t, err)
}
