package planner

import (
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walking-go/pkg/trajectory"
)

func identityAt(p mgl64.Vec3) trajectory.Pose {
	pose := trajectory.IdentityPose()
	pose.Position = p
	return pose
}

func newTestPlanner(t *testing.T) *Reference {
	t.Helper()
	r, err := NewReference(DefaultParameters(), nil)
	require.NoError(t, err)
	return r
}

func TestParameterValidation(t *testing.T) {
	p := DefaultParameters()
	p.DoubleSupportRatio = 1.5
	_, err := NewReference(p, nil)
	assert.Error(t, err)

	p = DefaultParameters()
	p.StepsPerSegment = 0
	_, err = NewReference(p, nil)
	assert.Error(t, err)
}

func TestSegmentBeforePlanFails(t *testing.T) {
	r := newTestPlanner(t)
	assert.False(t, r.IsComputed())
	_, err := r.Segment()
	assert.Error(t, err)
}

func TestFirstSegmentTowardGoal(t *testing.T) {
	r := newTestPlanner(t)
	require.NoError(t, r.GenerateFirstSegment(mgl64.Vec2{0.5, 0}))
	require.True(t, r.IsComputed())
	seg, err := r.Segment()
	require.NoError(t, err)

	n := seg.Horizon()
	require.Greater(t, n, 0)
	assert.Len(t, seg.LeftPhases, n)
	assert.Len(t, seg.RightPhases, n)

	assert.True(t, sort.IntsAreSorted(seg.MergePoints))
	assert.Equal(t, 0, seg.MergePoints[0])
	for _, mp := range seg.MergePoints {
		assert.Less(t, mp, n)
	}

	// The right foot swings first and has landings ahead of it.
	assert.Greater(t, len(seg.RightSteps), 1)
	assert.Equal(t, Right, seg.RightSteps[1].Foot)
	assert.Greater(t, seg.RightSteps[1].Position.X(), 0.0)

	// Step lists open with the current stance poses.
	assert.Equal(t, 0.0, seg.LeftSteps[0].Position.X())
	assert.Equal(t, 0.0, seg.RightSteps[0].Position.X())
}

func TestSegmentStartsAndEndsInDoubleSupport(t *testing.T) {
	r := newTestPlanner(t)
	require.NoError(t, r.GenerateFirstSegment(mgl64.Vec2{0.5, 0}))
	seg, err := r.Segment()
	require.NoError(t, err)

	front := seg.Samples[0]
	assert.True(t, front.InDoubleSupport())

	back := seg.Samples[seg.Horizon()-1]
	assert.True(t, back.InDoubleSupport())
	assert.InDelta(t, 0, back.DCMVelocity.Len(), 1e-9)
}

func TestPhasesConsistentWithContacts(t *testing.T) {
	r := newTestPlanner(t)
	require.NoError(t, r.GenerateFirstSegment(mgl64.Vec2{0.5, 0}))
	seg, err := r.Segment()
	require.NoError(t, err)

	sawSwing := false
	for i, s := range seg.Samples {
		if seg.RightPhases[i] == Swing {
			sawSwing = true
			assert.False(t, s.RightInContact, "tick %d", i)
			assert.True(t, s.LeftInContact, "tick %d", i)
			assert.True(t, s.LeftFixed, "tick %d", i)
		}
		if seg.RightPhases[i] == Switching {
			assert.True(t, s.InDoubleSupport(), "tick %d", i)
		}
	}
	assert.True(t, sawSwing)
}

func TestStandingSegmentWhenGoalReached(t *testing.T) {
	r := newTestPlanner(t)
	require.NoError(t, r.GenerateFirstSegment(mgl64.Vec2{0, 0}))
	seg, err := r.Segment()
	require.NoError(t, err)

	assert.Greater(t, seg.Horizon(), 0)
	assert.Len(t, seg.LeftSteps, 1)
	assert.Len(t, seg.RightSteps, 1)
	for _, s := range seg.Samples {
		assert.True(t, s.InDoubleSupport())
	}
}

func TestRequestUpdateAnchorsOnFixedFoot(t *testing.T) {
	r := newTestPlanner(t)
	anchor := mgl64.Vec3{0.3, 0.08, 0}
	fixed := identityAt(anchor)

	require.NoError(t, r.RequestUpdate(2.5, fixed, true, 20, mgl64.Vec2{1.0, 0.08}))
	seg, err := r.Segment()
	require.NoError(t, err)

	assert.Equal(t, anchor.X(), seg.LeftSteps[0].Position.X())
	// Impact times are absolute, measured from the segment start.
	assert.Greater(t, seg.RightSteps[1].ImpactTime, 2.5)
}

func TestNominalDCMOffsetPositive(t *testing.T) {
	r := newTestPlanner(t)
	assert.Greater(t, r.NominalDCMOffset(), 0.0)
	assert.Less(t, r.NominalDCMOffset(), r.StepDuration())
}
