package walking

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/config"
	"walking-go/pkg/robot"
	"walking-go/pkg/trajectory"
	"walking-go/pkg/walkerr"
)

// minTotalFz is the normal force, in newtons, below which the robot is
// considered airborne and the ZMP undefined.
const minTotalFz = 0.1

// ZMPMeasurer converts the two foot wrenches into a global ZMP. Each
// foot's local ZMP (-ty/fz, tx/fz) is mapped to world coordinates through
// the foot pose and the two contributions are averaged, weighted by normal
// force. With saturation enabled a foot below the threshold is dropped
// entirely, which keeps a barely loaded swing foot from dragging the
// measurement around at touchdown.
type ZMPMeasurer struct {
	useSaturation bool
	threshold     float64
	epsilon       float64
}

// NewZMPMeasurer validates the saturation setup.
func NewZMPMeasurer(cfg config.ZMPMeasurement) (*ZMPMeasurer, error) {
	if cfg.UseSaturation && cfg.FzThreshold <= 0 {
		return nil, walkerr.New(walkerr.ErrSchedulingSaturation,
			"fz saturation threshold must be positive, got %g", cfg.FzThreshold)
	}
	return &ZMPMeasurer{
		useSaturation: cfg.UseSaturation,
		threshold:     cfg.FzThreshold,
		epsilon:       cfg.Epsilon,
	}, nil
}

// Evaluate computes the world-frame ZMP from the two foot wrenches.
func (z *ZMPMeasurer) Evaluate(left, right robot.Wrench, leftPose, rightPose trajectory.Pose) (mgl64.Vec2, error) {
	fzL := left.Force.Z()
	fzR := right.Force.Z()
	if fzL+fzR < minTotalFz {
		return mgl64.Vec2{}, walkerr.New(walkerr.ErrFeedbackContact,
			"total normal force %.3f N too low to evaluate the ZMP", fzL+fzR)
	}

	wL, wR := fzL, fzR
	if z.useSaturation {
		if fzL < z.threshold {
			wL = 0
		}
		if fzR < z.threshold {
			wR = 0
		}
	}
	denom := wL + wR + z.epsilon
	if denom < minTotalFz {
		return mgl64.Vec2{}, walkerr.New(walkerr.ErrFeedbackContact,
			"both feet below the %.1f N saturation threshold", z.threshold)
	}

	sum := footZMP(left, leftPose).Mul(wL).Add(footZMP(right, rightPose).Mul(wR))
	return sum.Mul(1 / denom), nil
}

// footZMP maps one foot's local ZMP into world coordinates. A foot with no
// load contributes with weight zero, so the local value is irrelevant then.
func footZMP(w robot.Wrench, pose trajectory.Pose) mgl64.Vec2 {
	fz := w.Force.Z()
	if fz < minTotalFz {
		return mgl64.Vec2{}
	}
	local := mgl64.Vec3{-w.Torque.Y() / fz, w.Torque.X() / fz, 0}
	world := pose.Position.Add(pose.Orientation.Rotate(local))
	return mgl64.Vec2{world.X(), world.Y()}
}
