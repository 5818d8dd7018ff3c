// Package trajectory holds the fixed-horizon, time-indexed reference
// buffers of the walking controller and the merge-point protocol that lets
// an asynchronous planner splice new segments into the in-flight horizon
// without discontinuities.
package trajectory

import "github.com/go-gl/mathgl/mgl64"

// Pose is a foot pose in world coordinates.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// IdentityPose returns a pose at the origin with identity orientation.
func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// Twist is a spatial velocity.
type Twist struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// Sample is one tick of the buffered references. All fields advance in
// lock step.
type Sample struct {
	LeftFoot  Pose
	RightFoot Pose

	LeftTwist  Twist
	RightTwist Twist

	LeftInContact  bool
	RightInContact bool

	// LeftFixed marks which foot is the fixed frame for odometry.
	LeftFixed bool

	DCMPosition mgl64.Vec2
	DCMVelocity mgl64.Vec2

	ComHeight         float64
	ComHeightVelocity float64
}

// InDoubleSupport reports whether both feet are in contact.
func (s *Sample) InDoubleSupport() bool {
	return s.LeftInContact && s.RightInContact
}
