package lipm

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/walkerr"
)

// StancePhaseThreshold is the desired-DCM-velocity norm below which the
// inner stabilizer considers the robot standing still. Level triggered,
// checked every tick without debouncing.
const StancePhaseThreshold = 1e-3

// ZMPControllerGains is one gain pair of the inner loop.
type ZMPControllerGains struct {
	KZmp float64
	KCom float64
}

// ZMPController is the inner ZMP-CoM stabilizer. It turns the desired ZMP
// from the outer loop and the LIP CoM reference into a corrected CoM
// position/velocity reference:
//
//	com_vel = com_vel_des - kZmp*(zmp_des - zmp) + kCom*(com_des - com)
//
// and integrates the corrected velocity into the position reference.
type ZMPController struct {
	stance  ZMPControllerGains
	walking ZMPControllerGains
	dT      float64

	inStancePhase bool

	zmpMeasured mgl64.Vec2
	comMeasured mgl64.Vec2
	zmpDesired  mgl64.Vec2
	comDesired  mgl64.Vec2
	comVelRef   mgl64.Vec2

	positionOut mgl64.Vec2
	velocityOut mgl64.Vec2
	reset       bool
}

// NewZMPController creates the stabilizer with per-phase gain pairs.
func NewZMPController(stance, walking ZMPControllerGains, dT float64) *ZMPController {
	return &ZMPController{stance: stance, walking: walking, dT: dT}
}

// Reset re-anchors the internal integrator, typically on the first buffered
// DCM sample when the robot is prepared or a trajectory is spliced.
func (c *ZMPController) Reset(anchor mgl64.Vec2) {
	c.positionOut = anchor
	c.velocityOut = mgl64.Vec2{}
	c.reset = true
}

// SetPhase selects the stance or walking gain pair for this tick.
func (c *ZMPController) SetPhase(stancePhase bool) {
	c.inStancePhase = stancePhase
}

// InStancePhase reports the currently selected phase.
func (c *ZMPController) InStancePhase() bool { return c.inStancePhase }

// SetFeedback stores the measured ZMP and CoM.
func (c *ZMPController) SetFeedback(zmp, com mgl64.Vec2) {
	c.zmpMeasured = zmp
	c.comMeasured = com
}

// SetReference stores the desired ZMP and the LIP CoM reference.
func (c *ZMPController) SetReference(zmpDesired, comDesired, comVelDesired mgl64.Vec2) {
	c.zmpDesired = zmpDesired
	c.comDesired = comDesired
	c.comVelRef = comVelDesired
}

// Evaluate computes the corrected CoM reference for this tick.
func (c *ZMPController) Evaluate() error {
	if !c.reset {
		return walkerr.New(walkerr.ErrRuntime, "ZMP controller evaluated before reset")
	}
	gains := c.walking
	if c.inStancePhase {
		gains = c.stance
	}

	zmpErr := c.zmpDesired.Sub(c.zmpMeasured)
	comErr := c.comDesired.Sub(c.comMeasured)
	c.velocityOut = c.comVelRef.Sub(zmpErr.Mul(gains.KZmp)).Add(comErr.Mul(gains.KCom))
	c.positionOut = c.positionOut.Add(c.velocityOut.Mul(c.dT))
	return nil
}

// Output returns the corrected CoM position and velocity references.
func (c *ZMPController) Output() (position, velocity mgl64.Vec2) {
	return c.positionOut, c.velocityOut
}
