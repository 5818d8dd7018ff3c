// Package robot defines the hardware-facing collaborator interfaces of the
// walking controller and a simulated implementation used by the composition
// root and the tests. The controller never talks to a device directly;
// everything flows through these interfaces, injected once at construction.
package robot

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/trajectory"
)

// ControlMode selects the joint-level control scheme.
type ControlMode int

const (
	ModePosition ControlMode = iota
	ModePositionDirect
)

// Wrench is a 6D contact wrench expressed in the foot sole frame.
type Wrench struct {
	Force  mgl64.Vec3
	Torque mgl64.Vec3
}

// Feedback is one synchronized sensor snapshot.
type Feedback struct {
	JointPositions  []float64
	JointVelocities []float64

	LeftWrench  Wrench
	RightWrench Wrench

	ComPosition mgl64.Vec3
	ComVelocity mgl64.Vec3

	// DCM is the measured divergent component, com_xy + com_vel_xy/omega.
	DCM mgl64.Vec2

	LeftFootPose  trajectory.Pose
	RightFootPose trajectory.Pose
}

// FeedbackProvider acquires sensor data within a bounded timeout.
type FeedbackProvider interface {
	// GetFeedback blocks until a coherent snapshot is available or the
	// timeout elapses.
	GetFeedback(timeoutMs int) (*Feedback, error)

	// UpdateWorldToBase re-anchors the floating-base odometry on the
	// currently fixed foot.
	UpdateWorldToBase(fixedFoot trajectory.Pose, leftIsFixed bool) error
}

// IKSolver turns task-space references into joint positions.
type IKSolver interface {
	ComputeCommand(leftFoot, rightFoot trajectory.Pose, comPosition mgl64.Vec3) ([]float64, error)
}

// Actuator is the joint command sink.
type Actuator interface {
	SetPositionReferences(jointPositions []float64) error
	SwitchControlMode(mode ControlMode) error
	CheckMotionDone() (bool, error)
}
