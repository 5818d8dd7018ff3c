package lipm

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/walkerr"
)

// SupportRect is an axis-aligned rectangle approximating the support
// polygon, used by the predictive controller to keep the commanded ZMP
// inside the planned contacts.
type SupportRect struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Reference carries the per-tick reference of the outer DCM loop. The
// reactive controller consumes Position and Velocity; the predictive one
// consumes the Horizon samples and the Support rectangle.
type Reference struct {
	Position mgl64.Vec2
	Velocity mgl64.Vec2
	Horizon  []mgl64.Vec2
	Support  SupportRect
}

// DCMController is the outer loop of the cascade. Which implementation is
// used is a static configuration choice.
type DCMController interface {
	SetFeedback(dcm mgl64.Vec2)
	SetReference(ref Reference)
	Evaluate() error
	Output() mgl64.Vec2
	Reset()
}

// ReactiveDCMController implements the instantaneous DCM tracking law
//
//	u = dcm - 1/omega * (dcm_vel_des + k*(dcm_pos_des - dcm))
type ReactiveDCMController struct {
	gain  float64
	omega float64

	feedback  mgl64.Vec2
	reference Reference

	output    mgl64.Vec2
	evaluated bool
	fed       bool
}

// NewReactiveDCMController creates the reactive controller.
func NewReactiveDCMController(gain, omega float64) *ReactiveDCMController {
	return &ReactiveDCMController{gain: gain, omega: omega}
}

// SetFeedback stores the measured DCM.
func (c *ReactiveDCMController) SetFeedback(dcm mgl64.Vec2) {
	c.feedback = dcm
	c.fed = true
}

// SetReference stores the desired DCM position and velocity.
func (c *ReactiveDCMController) SetReference(ref Reference) {
	c.reference = ref
}

// Evaluate computes the desired ZMP for the current tick.
func (c *ReactiveDCMController) Evaluate() error {
	if !c.fed {
		return walkerr.New(walkerr.ErrRuntime, "reactive DCM controller evaluated without feedback")
	}
	err := c.reference.Position.Sub(c.feedback)
	inner := c.reference.Velocity.Add(err.Mul(c.gain))
	c.output = c.feedback.Sub(inner.Mul(1.0 / c.omega))
	c.evaluated = true
	return nil
}

// Output returns the desired ZMP of the last Evaluate.
func (c *ReactiveDCMController) Output() mgl64.Vec2 { return c.output }

// Reset clears the controller state after a trajectory discontinuity. The
// reactive law is memoryless, only the bookkeeping flags are cleared.
func (c *ReactiveDCMController) Reset() {
	c.evaluated = false
	c.fed = false
}
