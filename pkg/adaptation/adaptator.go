// Package adaptation corrects the upcoming footstep's landing position and
// impact time from real-time ZMP/DCM feedback.
//
// Every tick inside the adaptation window a three-variable QP is rebuilt:
//
//	x = [z, sigma, delta]
//
// where z is the corrected next ZMP x-position, sigma = exp(omega*T) with T
// the corrected remaining step duration, and delta the DCM offset at
// touchdown. A single pinned equality encodes the single-support LIP
// dynamics; box rows bound z around the nominal landing position and sigma
// between the exponentials of the tolerated durations. The Hessian depends
// on the gains alone and is set exactly once.
package adaptation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"walking-go/pkg/qp"
	"walking-go/pkg/walkerr"
)

const (
	numVariables   = 3
	numConstraints = 5

	inf = math.MaxFloat64
)

// Gains are the positive cost weights of the adaptation QP. Coupling ties
// z + delta to the nominal next DCM through the off-diagonal Hessian term.
type Gains struct {
	Zmp      float64
	Offset   float64
	Sigma    float64
	Coupling float64
}

// Tolerances bound how far the QP may move the step from its nominal plan.
type Tolerances struct {
	// Zmp is the admissible landing-position deviation in meters.
	Zmp float64

	// Duration is the admissible step-duration deviation in seconds,
	// applied in the time domain and mapped through exp(omega*t).
	Duration float64
}

// Problem is the nominal side of one adaptation tick.
type Problem struct {
	NominalNextPosition float64
	NominalSigma        float64
	NominalDCMOffset    float64
	NominalNextDCM      float64
	Omega               float64
}

// Measured is the current side of one adaptation tick. The walking
// controller passes Offset as zero, so a state on the nominal LIP orbit
// satisfies the touchdown equality at the nominal step.
type Measured struct {
	Zmp    float64
	Dcm    float64
	Offset float64
}

// Adaptator owns the QP state. It is stateless across ticks except for the
// constant Hessian and the engine's initialized flag.
type Adaptator struct {
	gains      Gains
	tolerances Tolerances
	engine     *qp.Engine

	gradient    *mat.VecDense
	constraints *mat.Dense
	lower       *mat.VecDense
	upper       *mat.VecDense

	omega    float64
	solution [numVariables]float64
	solved   bool
}

// New validates the gains and builds the constant Hessian.
func New(gains Gains, tolerances Tolerances) (*Adaptator, error) {
	for option, v := range map[string]float64{
		"zmp":      gains.Zmp,
		"offset":   gains.Offset,
		"sigma":    gains.Sigma,
		"coupling": gains.Coupling,
	} {
		if v <= 0 {
			return nil, walkerr.ConfigValidation("step_adaptation", option, "gain must be positive")
		}
	}
	if tolerances.Zmp <= 0 || tolerances.Duration <= 0 {
		return nil, walkerr.ConfigValidation("step_adaptation", "tolerance", "must be positive")
	}

	a := &Adaptator{
		gains:       gains,
		tolerances:  tolerances,
		engine:      qp.New(numVariables, numConstraints),
		gradient:    mat.NewVecDense(numVariables, nil),
		constraints: mat.NewDense(numConstraints, numVariables, nil),
		lower:       mat.NewVecDense(numConstraints, nil),
		upper:       mat.NewVecDense(numConstraints, nil),
	}

	hessian := mat.NewSymDense(numVariables, []float64{
		gains.Coupling + gains.Zmp, 0, gains.Coupling,
		0, gains.Sigma, 0,
		gains.Coupling, 0, gains.Coupling + gains.Offset,
	})
	if err := a.engine.SetHessian(hessian); err != nil {
		return nil, err
	}
	return a, nil
}

// Reset invalidates the last solution. The Hessian and the engine survive.
func (a *Adaptator) Reset() { a.solved = false }

// Solve rebuilds gradient, constraints and bounds from the tick's nominal
// and measured values and runs the QP. Any failed sub-step aborts the
// adaptation and is propagated unchanged.
func (a *Adaptator) Solve(p Problem, m Measured) error {
	a.solved = false
	if p.Omega <= 0 {
		return walkerr.SolverFailure("step adaptation", "omega must be positive")
	}
	if p.NominalSigma <= 1 {
		return walkerr.SolverFailure("step adaptation", "nominal sigma must exceed 1")
	}
	a.omega = p.Omega

	a.gradient.SetVec(0, -a.gains.Coupling*p.NominalNextDCM-a.gains.Zmp*p.NominalNextPosition)
	a.gradient.SetVec(1, -a.gains.Sigma*p.NominalSigma)
	a.gradient.SetVec(2, -a.gains.Offset*p.NominalDCMOffset-a.gains.Coupling*p.NominalNextDCM)
	if err := a.engine.SetGradient(a.gradient); err != nil {
		return err
	}

	// Row 0 pins the LIP touchdown equation; rows 1-2 box z around the
	// nominal landing position; rows 3-4 box sigma between the
	// exponentials of the tolerated durations.
	a.constraints.Zero()
	a.constraints.Set(0, 0, 1)
	a.constraints.Set(0, 1, (m.Zmp+m.Offset)-m.Dcm-m.Offset/2)
	a.constraints.Set(0, 2, 1)
	a.constraints.Set(1, 0, 1)
	a.constraints.Set(2, 0, -1)
	a.constraints.Set(3, 1, 1)
	a.constraints.Set(4, 1, -1)
	if err := a.engine.SetConstraints(a.constraints); err != nil {
		return err
	}

	nominalDuration := math.Log(p.NominalSigma) / p.Omega
	pinned := m.Offset/2 + m.Zmp
	a.upper.SetVec(0, pinned)
	a.upper.SetVec(1, p.NominalNextPosition+a.tolerances.Zmp)
	a.upper.SetVec(2, -(p.NominalNextPosition - a.tolerances.Zmp))
	a.upper.SetVec(3, math.Exp((nominalDuration+a.tolerances.Duration)*p.Omega))
	a.upper.SetVec(4, -math.Exp((nominalDuration-a.tolerances.Duration)*p.Omega))

	a.lower.SetVec(0, pinned)
	for i := 1; i < numConstraints; i++ {
		a.lower.SetVec(i, -inf)
	}
	if err := a.engine.SetBounds(a.lower, a.upper); err != nil {
		return err
	}

	if !a.engine.Initialized() {
		if err := a.engine.Initialize(); err != nil {
			return err
		}
	}
	if err := a.engine.Solve(); err != nil {
		return err
	}

	sol, err := a.engine.Solution()
	if err != nil {
		return err
	}
	for i := 0; i < numVariables; i++ {
		a.solution[i] = sol.AtVec(i)
	}
	a.solved = true
	return nil
}

// NextStepPosition returns the corrected landing x-position.
func (a *Adaptator) NextStepPosition() (float64, error) {
	if !a.solved {
		return 0, walkerr.SolverFailure("step adaptation", "no solution available")
	}
	return a.solution[0], nil
}

// Sigma returns the solved exponential time variable.
func (a *Adaptator) Sigma() (float64, error) {
	if !a.solved {
		return 0, walkerr.SolverFailure("step adaptation", "no solution available")
	}
	return a.solution[1], nil
}

// DCMOffset returns the solved DCM offset at touchdown.
func (a *Adaptator) DCMOffset() (float64, error) {
	if !a.solved {
		return 0, walkerr.SolverFailure("step adaptation", "no solution available")
	}
	return a.solution[2], nil
}

// ImpactTime decodes the corrected impact time: the solved duration is
// measured to the middle of the next double support, so half of it is
// removed again.
func (a *Adaptator) ImpactTime(now, nextDoubleSupportDuration float64) (float64, error) {
	if !a.solved {
		return 0, walkerr.SolverFailure("step adaptation", "no solution available")
	}
	return now + math.Log(a.solution[1])/a.omega - nextDoubleSupportDuration/2, nil
}
