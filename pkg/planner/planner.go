// Package planner defines the contract between the walking controller and
// the footstep/trajectory generator, together with a flat-ground reference
// implementation used by the simulator and the tests. The generator runs
// logically asynchronously: a segment is requested well before its merge
// tick and collected shortly before the graft.
package planner

import (
	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/trajectory"
)

// Foot identifies one of the two feet.
type Foot int

const (
	Left Foot = iota
	Right
)

func (f Foot) String() string {
	if f == Left {
		return "left"
	}
	return "right"
}

// Other returns the opposite foot.
func (f Foot) Other() Foot {
	if f == Left {
		return Right
	}
	return Left
}

// StepPhase is the per-foot gait phase of one tick.
type StepPhase int

const (
	Stance StepPhase = iota
	Swing
	Switching
)

func (p StepPhase) String() string {
	switch p {
	case Stance:
		return "stance"
	case Swing:
		return "swing"
	default:
		return "switching"
	}
}

// Footstep is one planned footfall. The first entry of a step list is the
// foot's current stance pose, so a list with more than one entry means the
// foot still has a landing ahead of it.
type Footstep struct {
	ImpactTime float64
	Position   mgl64.Vec2
	Foot       Foot
}

// Segment is one planned trajectory piece. All per-tick slices are aligned
// by tick index and share the same length.
type Segment struct {
	Samples     []trajectory.Sample
	MergePoints []int

	LeftSteps  []Footstep
	RightSteps []Footstep

	LeftPhases  []StepPhase
	RightPhases []StepPhase
}

// Horizon returns the segment length in ticks.
func (s *Segment) Horizon() int { return len(s.Samples) }

// Planner generates trajectory segments toward a goal.
type Planner interface {
	// GenerateFirstSegment plans the initial segment from standing still,
	// both feet in contact, toward goal.
	GenerateFirstSegment(goal mgl64.Vec2) error

	// RequestUpdate plans a replacement segment starting at initTime,
	// anchored at the fixed foot's measured transform. mergeIndex is the
	// tick offset from "now" at which the caller intends to graft the
	// result; the segment's own merge points are relative to its start.
	RequestUpdate(initTime float64, fixedFoot trajectory.Pose, leftIsFixed bool, mergeIndex int, goal mgl64.Vec2) error

	// IsComputed reports whether a requested segment is ready.
	IsComputed() bool

	// Segment returns the last computed segment.
	Segment() (*Segment, error)

	// NominalComHeight is the LIP pendulum height the plan assumes.
	NominalComHeight() float64

	// NominalDCMOffset is the steady-state gap between the DCM at a step
	// boundary and the stance ZMP, along the walking direction.
	NominalDCMOffset() float64

	// DoubleSupportRatio is the fraction of a step spent in double
	// support.
	DoubleSupportRatio() float64

	// StepDuration is the nominal duration of one step in seconds.
	StepDuration() float64
}
