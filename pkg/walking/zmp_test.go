package walking

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walking-go/pkg/config"
	"walking-go/pkg/robot"
	"walking-go/pkg/trajectory"
	"walking-go/pkg/walkerr"
)

func poseAt(x, y float64) trajectory.Pose {
	p := trajectory.IdentityPose()
	p.Position = mgl64.Vec3{x, y, 0}
	return p
}

func verticalWrench(fz float64) robot.Wrench {
	return robot.Wrench{Force: mgl64.Vec3{0, 0, fz}}
}

func TestZMPEvenLoadIsMidpoint(t *testing.T) {
	z, err := NewZMPMeasurer(config.ZMPMeasurement{})
	require.NoError(t, err)

	zmp, err := z.Evaluate(verticalWrench(150), verticalWrench(150), poseAt(0, 0.08), poseAt(0, -0.08))
	require.NoError(t, err)
	assert.InDelta(t, 0, zmp.X(), 1e-9)
	assert.InDelta(t, 0, zmp.Y(), 1e-9)
}

func TestZMPWeightedByNormalForce(t *testing.T) {
	z, err := NewZMPMeasurer(config.ZMPMeasurement{})
	require.NoError(t, err)

	zmp, err := z.Evaluate(verticalWrench(300), verticalWrench(100), poseAt(0, 0.08), poseAt(0, -0.08))
	require.NoError(t, err)
	assert.Greater(t, zmp.Y(), 0.0)
}

func TestZMPUsesSoleTorques(t *testing.T) {
	z, err := NewZMPMeasurer(config.ZMPMeasurement{})
	require.NoError(t, err)

	left := robot.Wrench{
		Force:  mgl64.Vec3{0, 0, 200},
		Torque: mgl64.Vec3{0, -4, 0}, // local ZMP shifts +2 cm in x
	}
	zmp, err := z.Evaluate(left, verticalWrench(0), poseAt(0.1, 0.08), poseAt(0.1, -0.08))
	require.NoError(t, err)
	assert.InDelta(t, 0.12, zmp.X(), 1e-9)
	assert.InDelta(t, 0.08, zmp.Y(), 1e-9)
}

func TestZMPSaturationDropsLightFoot(t *testing.T) {
	z, err := NewZMPMeasurer(config.ZMPMeasurement{UseSaturation: true, FzThreshold: 15})
	require.NoError(t, err)

	// The barely touching right foot must not drag the ZMP over.
	zmp, err := z.Evaluate(verticalWrench(290), verticalWrench(10), poseAt(0, 0.08), poseAt(0, -0.08))
	require.NoError(t, err)
	assert.InDelta(t, 0.08, zmp.Y(), 1e-9)
}

func TestZMPSaturationThresholdValidated(t *testing.T) {
	_, err := NewZMPMeasurer(config.ZMPMeasurement{UseSaturation: true, FzThreshold: 0})
	require.Error(t, err)
	assert.True(t, walkerr.Is(err, walkerr.ErrSchedulingSaturation))
}

func TestZMPAirborneFails(t *testing.T) {
	z, err := NewZMPMeasurer(config.ZMPMeasurement{})
	require.NoError(t, err)

	_, err = z.Evaluate(verticalWrench(0.02), verticalWrench(0.03), poseAt(0, 0.08), poseAt(0, -0.08))
	require.Error(t, err)
	assert.True(t, walkerr.Is(err, walkerr.ErrFeedbackContact))
	assert.True(t, walkerr.IsFailStop(err))
}
