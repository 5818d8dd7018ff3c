package robot

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/lipm"
	"walking-go/pkg/trajectory"
	"walking-go/pkg/walkerr"
)

const simJoints = 23

// Sim is an idealized robot: every issued command is realized perfectly by
// the next feedback snapshot, with contact wrenches consistent with the
// commanded stance. It implements FeedbackProvider, IKSolver and Actuator,
// and supports scripted failures for the fail-stop paths.
type Sim struct {
	omega float64
	dT    float64
	mass  float64

	leftFoot  trajectory.Pose
	rightFoot trajectory.Pose
	com       mgl64.Vec3
	prevCom   mgl64.Vec3
	commanded bool

	joints      []float64
	motionTicks int

	feedbackErr error
	ikErr       error
}

// NewSim builds a simulator standing at the origin.
func NewSim(comHeight, stepWidth, dT float64) *Sim {
	s := &Sim{
		omega:  lipm.Omega(comHeight),
		dT:     dT,
		mass:   30.0,
		joints: make([]float64, simJoints),
	}
	s.leftFoot = trajectory.IdentityPose()
	s.rightFoot = trajectory.IdentityPose()
	s.leftFoot.Position = mgl64.Vec3{0, stepWidth / 2, 0}
	s.rightFoot.Position = mgl64.Vec3{0, -stepWidth / 2, 0}
	s.com = mgl64.Vec3{0, 0, comHeight}
	s.prevCom = s.com
	return s
}

// FailNextFeedback makes the next GetFeedback return err.
func (s *Sim) FailNextFeedback(err error) { s.feedbackErr = err }

// FailNextIK makes the next ComputeCommand return err.
func (s *Sim) FailNextIK(err error) { s.ikErr = err }

// GetFeedback returns the snapshot implied by the last command.
func (s *Sim) GetFeedback(timeoutMs int) (*Feedback, error) {
	if s.feedbackErr != nil {
		err := s.feedbackErr
		s.feedbackErr = nil
		return nil, err
	}

	vel := s.com.Sub(s.prevCom).Mul(1 / s.dT)
	if !s.commanded {
		vel = mgl64.Vec3{}
	}
	fb := &Feedback{
		JointPositions:  append([]float64(nil), s.joints...),
		JointVelocities: make([]float64, len(s.joints)),
		ComPosition:     s.com,
		ComVelocity:     vel,
		LeftFootPose:    s.leftFoot,
		RightFootPose:   s.rightFoot,
	}
	fb.DCM = mgl64.Vec2{
		s.com.X() + vel.X()/s.omega,
		s.com.Y() + vel.Y()/s.omega,
	}

	// Weight split: a foot carries load only while its sole is on the
	// ground; with both feet down the load is shared evenly. Zero sole
	// torque puts each foot's local ZMP at its origin.
	leftDown := s.leftFoot.Position.Z() < 1e-4
	rightDown := s.rightFoot.Position.Z() < 1e-4
	total := s.mass * lipm.Gravity
	switch {
	case leftDown && rightDown:
		fb.LeftWrench.Force = mgl64.Vec3{0, 0, total / 2}
		fb.RightWrench.Force = mgl64.Vec3{0, 0, total / 2}
	case leftDown:
		fb.LeftWrench.Force = mgl64.Vec3{0, 0, total}
	case rightDown:
		fb.RightWrench.Force = mgl64.Vec3{0, 0, total}
	}
	return fb, nil
}

// UpdateWorldToBase is a no-op: the simulator tracks world poses directly.
func (s *Sim) UpdateWorldToBase(fixedFoot trajectory.Pose, leftIsFixed bool) error {
	return nil
}

// ComputeCommand records the task-space targets and fabricates a joint
// vector. The simulator has no kinematic chain; the joints only need to be
// stable and repeatable for the actuator path.
func (s *Sim) ComputeCommand(leftFoot, rightFoot trajectory.Pose, comPosition mgl64.Vec3) ([]float64, error) {
	if s.ikErr != nil {
		err := s.ikErr
		s.ikErr = nil
		return nil, err
	}
	s.prevCom = s.com
	s.leftFoot = leftFoot
	s.rightFoot = rightFoot
	s.com = comPosition
	s.commanded = true

	out := make([]float64, simJoints)
	out[0] = comPosition.X()
	out[1] = comPosition.Y()
	out[2] = comPosition.Z()
	copy(s.joints, out)
	return out, nil
}

// SetPositionReferences accepts the joint command.
func (s *Sim) SetPositionReferences(jointPositions []float64) error {
	if len(jointPositions) != simJoints {
		return walkerr.New(walkerr.ErrRuntime, "expected %d joint references, got %d",
			simJoints, len(jointPositions))
	}
	copy(s.joints, jointPositions)
	return nil
}

// SwitchControlMode accepts any mode.
func (s *Sim) SwitchControlMode(mode ControlMode) error { return nil }

// CheckMotionDone reports completion after a few polls, mimicking the ramp
// of a position move.
func (s *Sim) CheckMotionDone() (bool, error) {
	s.motionTicks++
	return s.motionTicks >= 3, nil
}
