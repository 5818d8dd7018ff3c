package lipm

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"walking-go/pkg/qp"
	"walking-go/pkg/walkerr"
)

// PredictiveDCMController solves a receding-horizon QP on the discretized
// DCM dynamics
//
//	dcm[k+1] = (1 + omega*dT)*dcm[k] - omega*dT*zmp[k]
//
// tracking a horizon of desired DCM samples while keeping the commanded ZMP
// inside the support rectangle. Only the first input of the horizon is
// emitted. The axes decouple, so two engines share one constant Hessian.
type PredictiveDCMController struct {
	horizon     int
	stateWeight float64
	inputWeight float64
	omega       float64
	dT          float64

	phi   []float64  // phi[k] = a^(k+1), free response of sample k
	gamma *mat.Dense // forced response, lower triangular

	engineX *qp.Engine
	engineY *qp.Engine

	feedback  mgl64.Vec2
	reference Reference
	fed       bool

	output mgl64.Vec2
}

// NewPredictiveDCMController builds the controller and its constant cost
// curvature.
func NewPredictiveDCMController(horizon int, stateWeight, inputWeight, omega, dT float64) (*PredictiveDCMController, error) {
	if horizon < 2 {
		return nil, walkerr.ConfigValidation("dcm_controller", "horizon", "must be at least 2")
	}
	c := &PredictiveDCMController{
		horizon:     horizon,
		stateWeight: stateWeight,
		inputWeight: inputWeight,
		omega:       omega,
		dT:          dT,
	}

	a := 1.0 + omega*dT
	b := -omega * dT
	c.phi = make([]float64, horizon)
	c.gamma = mat.NewDense(horizon, horizon, nil)
	for k := 0; k < horizon; k++ {
		c.phi[k] = math.Pow(a, float64(k+1))
		for j := 0; j <= k; j++ {
			c.gamma.Set(k, j, math.Pow(a, float64(k-j))*b)
		}
	}

	var gtg mat.Dense
	gtg.Mul(c.gamma.T(), c.gamma)
	hess := mat.NewSymDense(horizon, nil)
	for i := 0; i < horizon; i++ {
		for j := i; j < horizon; j++ {
			v := stateWeight * gtg.At(i, j)
			if i == j {
				v += inputWeight
			}
			hess.SetSym(i, j, v)
		}
	}

	identity := mat.NewDense(horizon, horizon, nil)
	for i := 0; i < horizon; i++ {
		identity.Set(i, i, 1.0)
	}

	for _, axis := range []**qp.Engine{&c.engineX, &c.engineY} {
		eng := qp.New(horizon, horizon)
		if err := eng.SetHessian(hess); err != nil {
			return nil, err
		}
		if err := eng.SetConstraints(identity); err != nil {
			return nil, err
		}
		*axis = eng
	}
	return c, nil
}

// SetFeedback stores the measured DCM.
func (c *PredictiveDCMController) SetFeedback(dcm mgl64.Vec2) {
	c.feedback = dcm
	c.fed = true
}

// SetReference stores the horizon of desired DCM samples and the support
// rectangle of the current tick.
func (c *PredictiveDCMController) SetReference(ref Reference) {
	c.reference = ref
}

// Evaluate solves both axis QPs and stores the first input of each horizon.
func (c *PredictiveDCMController) Evaluate() error {
	if !c.fed {
		return walkerr.New(walkerr.ErrRuntime, "predictive DCM controller evaluated without feedback")
	}
	if len(c.reference.Horizon) == 0 {
		return walkerr.New(walkerr.ErrRuntime, "predictive DCM controller needs a reference horizon")
	}

	ux, err := c.solveAxis(c.engineX, 0, c.reference.Support.MinX, c.reference.Support.MaxX)
	if err != nil {
		return err
	}
	uy, err := c.solveAxis(c.engineY, 1, c.reference.Support.MinY, c.reference.Support.MaxY)
	if err != nil {
		return err
	}
	c.output = mgl64.Vec2{ux, uy}
	return nil
}

func (c *PredictiveDCMController) solveAxis(eng *qp.Engine, axis int, lo, hi float64) (float64, error) {
	n := c.horizon

	// Tracking error of the free response, padded with the last sample
	// when the buffered horizon is shorter than the prediction one.
	errFree := mat.NewVecDense(n, nil)
	for k := 0; k < n; k++ {
		ref := c.reference.Horizon[minInt(k, len(c.reference.Horizon)-1)][axis]
		errFree.SetVec(k, c.phi[k]*c.feedback[axis]-ref)
	}
	grad := mat.NewVecDense(n, nil)
	grad.MulVec(c.gamma.T(), errFree)
	grad.ScaleVec(c.stateWeight, grad)
	if err := eng.SetGradient(grad); err != nil {
		return 0, err
	}

	lower := mat.NewVecDense(n, nil)
	upper := mat.NewVecDense(n, nil)
	for k := 0; k < n; k++ {
		lower.SetVec(k, lo)
		upper.SetVec(k, hi)
	}
	if err := eng.SetBounds(lower, upper); err != nil {
		return 0, err
	}

	if !eng.Initialized() {
		if err := eng.Initialize(); err != nil {
			return 0, err
		}
	}
	if err := eng.Solve(); err != nil {
		return 0, err
	}
	sol, err := eng.Solution()
	if err != nil {
		return 0, err
	}
	return sol.AtVec(0), nil
}

// Output returns the desired ZMP of the last Evaluate.
func (c *PredictiveDCMController) Output() mgl64.Vec2 { return c.output }

// Reset clears the feedback flag after a trajectory discontinuity.
func (c *PredictiveDCMController) Reset() { c.fed = false }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
