package planner

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"walking-go/pkg/lipm"
	"walking-go/pkg/trajectory"
	"walking-go/pkg/walkerr"
)

// Parameters tune the reference gait generator.
type Parameters struct {
	SamplingTime       float64
	ComHeight          float64
	StepDuration       float64
	DoubleSupportRatio float64
	StepLength         float64
	StepWidth          float64
	SwingHeight        float64

	// StepsPerSegment bounds how many footfalls one segment plans ahead.
	StepsPerSegment int
}

// DefaultParameters returns a gait tuned for a small humanoid.
func DefaultParameters() Parameters {
	return Parameters{
		SamplingTime:       0.016,
		ComHeight:          0.53,
		StepDuration:       1.0,
		DoubleSupportRatio: 0.3,
		StepLength:         0.10,
		StepWidth:          0.16,
		SwingHeight:        0.03,
		StepsPerSegment:    4,
	}
}

// Reference is a flat-ground gait generator. Footfalls alternate along the
// straight line toward the goal; the desired DCM is the piecewise
// exponential of the LIP dynamics over the planned stance ZMPs, computed by
// a backward recursion from the final standing point so that the trajectory
// ends at rest.
type Reference struct {
	params Parameters
	omega  float64
	log    *logrus.Entry

	computed *Segment
}

// NewReference validates the parameters and builds the generator.
func NewReference(params Parameters, log *logrus.Entry) (*Reference, error) {
	if params.SamplingTime <= 0 {
		return nil, walkerr.ConfigValidation("planner", "sampling_time", "must be positive")
	}
	if params.ComHeight <= 0 {
		return nil, walkerr.ConfigValidation("planner", "com_height", "must be positive")
	}
	if params.StepDuration <= 0 {
		return nil, walkerr.ConfigValidation("planner", "step_duration", "must be positive")
	}
	if params.DoubleSupportRatio <= 0 || params.DoubleSupportRatio >= 1 {
		return nil, walkerr.ConfigValidation("planner", "double_support_ratio", "must be in (0, 1)")
	}
	if params.StepsPerSegment < 1 {
		return nil, walkerr.ConfigValidation("planner", "steps_per_segment", "must be at least 1")
	}
	return &Reference{
		params: params,
		omega:  lipm.Omega(params.ComHeight),
		log:    log,
	}, nil
}

// GenerateFirstSegment plans from the default stance at the origin.
func (r *Reference) GenerateFirstSegment(goal mgl64.Vec2) error {
	left := trajectory.IdentityPose()
	right := trajectory.IdentityPose()
	left.Position = mgl64.Vec3{0, r.params.StepWidth / 2, 0}
	right.Position = mgl64.Vec3{0, -r.params.StepWidth / 2, 0}
	r.computed = r.plan(0, left, right, Right, goal)
	return nil
}

// RequestUpdate replans from the fixed foot's measured transform. The other
// foot is reconstructed at the nominal lateral offset; it is the first to
// swing.
func (r *Reference) RequestUpdate(initTime float64, fixedFoot trajectory.Pose, leftIsFixed bool, mergeIndex int, goal mgl64.Vec2) error {
	other := fixedFoot
	lateral := r.params.StepWidth
	if leftIsFixed {
		other.Position = fixedFoot.Position.Add(mgl64.Vec3{0, -lateral, 0})
		r.computed = r.plan(initTime, fixedFoot, other, Right, goal)
	} else {
		other.Position = fixedFoot.Position.Add(mgl64.Vec3{0, lateral, 0})
		r.computed = r.plan(initTime, other, fixedFoot, Left, goal)
	}
	if r.log != nil {
		r.log.WithFields(logrus.Fields{
			"init_time":   initTime,
			"merge_index": mergeIndex,
			"horizon":     r.computed.Horizon(),
		}).Debug("segment replanned")
	}
	return nil
}

// IsComputed reports whether a segment is ready for collection.
func (r *Reference) IsComputed() bool { return r.computed != nil }

// Segment returns the last planned segment.
func (r *Reference) Segment() (*Segment, error) {
	if r.computed == nil {
		return nil, walkerr.New(walkerr.ErrRuntime, "no planned segment available")
	}
	return r.computed, nil
}

// NominalComHeight returns the pendulum height of the plan.
func (r *Reference) NominalComHeight() float64 { return r.params.ComHeight }

// NominalDCMOffset returns the steady-state DCM offset of the periodic
// gait, StepLength / (exp(omega*T) - 1).
func (r *Reference) NominalDCMOffset() float64 {
	return r.params.StepLength / (math.Exp(r.omega*r.params.StepDuration) - 1)
}

// DoubleSupportRatio returns the double-support fraction of a step.
func (r *Reference) DoubleSupportRatio() float64 { return r.params.DoubleSupportRatio }

// StepDuration returns the nominal step duration.
func (r *Reference) StepDuration() float64 { return r.params.StepDuration }

type plannedStep struct {
	foot    Foot
	landing mgl64.Vec3
	impact  float64
}

func (r *Reference) plan(initTime float64, left, right trajectory.Pose, firstSwing Foot, goal mgl64.Vec2) *Segment {
	p := r.params
	stepTicks := int(math.Round(p.StepDuration / p.SamplingTime))
	dsTicks := int(math.Round(p.StepDuration * p.DoubleSupportRatio / p.SamplingTime))
	if dsTicks < 1 {
		dsTicks = 1
	}
	ssTicks := stepTicks - dsTicks

	mid := left.Position.Add(right.Position).Mul(0.5)
	toGoal := mgl64.Vec2{goal.X() - mid.X(), goal.Y() - mid.Y()}
	dist := toGoal.Len()

	var steps []plannedStep
	if dist > p.StepLength/2 {
		dir := toGoal.Mul(1 / dist)
		side := mgl64.Vec2{-dir.Y(), dir.X()} // left of the walking direction
		n := int(math.Ceil(dist/p.StepLength)) + 1
		if n > p.StepsPerSegment {
			n = p.StepsPerSegment
		}
		swing := firstSwing
		for k := 0; k < n; k++ {
			advance := p.StepLength * float64(k+1)
			if advance > dist {
				advance = dist
			}
			lateral := p.StepWidth / 2
			if swing == Right {
				lateral = -lateral
			}
			landing := mgl64.Vec2{mid.X(), mid.Y()}.
				Add(dir.Mul(advance)).
				Add(side.Mul(lateral))
			steps = append(steps, plannedStep{
				foot:    swing,
				landing: mgl64.Vec3{landing.X(), landing.Y(), 0},
				impact:  initTime + float64(k+1)*p.StepDuration,
			})
			swing = swing.Other()
		}
	}

	// The trailing stand keeps the horizon long enough for a replanning
	// request to anchor well ahead of the buffer front.
	tail := stepTicks
	horizon := len(steps)*stepTicks + tail + 1

	seg := &Segment{
		Samples:     make([]trajectory.Sample, 0, horizon),
		LeftPhases:  make([]StepPhase, 0, horizon),
		RightPhases: make([]StepPhase, 0, horizon),
	}
	seg.MergePoints = append(seg.MergePoints, 0)
	for k := 1; k <= len(steps); k++ {
		seg.MergePoints = append(seg.MergePoints, k*stepTicks)
	}

	// Step lists open with the current stance poses.
	seg.LeftSteps = append(seg.LeftSteps, Footstep{
		ImpactTime: initTime,
		Position:   mgl64.Vec2{left.Position.X(), left.Position.Y()},
		Foot:       Left,
	})
	seg.RightSteps = append(seg.RightSteps, Footstep{
		ImpactTime: initTime,
		Position:   mgl64.Vec2{right.Position.X(), right.Position.Y()},
		Foot:       Right,
	})
	for _, s := range steps {
		fs := Footstep{
			ImpactTime: s.impact,
			Position:   mgl64.Vec2{s.landing.X(), s.landing.Y()},
			Foot:       s.foot,
		}
		if s.foot == Left {
			seg.LeftSteps = append(seg.LeftSteps, fs)
		} else {
			seg.RightSteps = append(seg.RightSteps, fs)
		}
	}

	// Stance ZMP per step and the backward DCM recursion. The pendulum
	// must come to rest over the final double-support midpoint.
	finalLeft, finalRight := left.Position, right.Position
	zmps := make([]mgl64.Vec2, len(steps))
	for i, s := range steps {
		stance := finalLeft
		if s.foot == Left {
			stance = finalRight
		}
		zmps[i] = mgl64.Vec2{stance.X(), stance.Y()}
		if s.foot == Left {
			finalLeft = s.landing
		} else {
			finalRight = s.landing
		}
	}
	finalMid := finalLeft.Add(finalRight).Mul(0.5)
	rest := mgl64.Vec2{finalMid.X(), finalMid.Y()}

	decay := math.Exp(-r.omega * p.StepDuration)
	dcmStarts := make([]mgl64.Vec2, len(steps))
	end := rest
	for i := len(steps) - 1; i >= 0; i-- {
		dcmStarts[i] = zmps[i].Add(end.Sub(zmps[i]).Mul(decay))
		end = dcmStarts[i]
	}

	curLeft, curRight := left, right
	for i, s := range steps {
		stance := curRight
		start := curLeft
		if s.foot == Right {
			stance = curLeft
			start = curRight
		}
		for t := 0; t < stepTicks; t++ {
			inDS := t < dsTicks
			tau := 0.0
			if !inDS {
				tau = float64(t-dsTicks) / float64(ssTicks)
			}

			swingPose, swingTwist := swingSample(start, s.landing, tau, p.SwingHeight, float64(ssTicks)*p.SamplingTime, inDS)

			elapsed := float64(t) * p.SamplingTime
			dcm := zmps[i].Add(dcmStarts[i].Sub(zmps[i]).Mul(math.Exp(r.omega * elapsed)))
			dcmVel := dcm.Sub(zmps[i]).Mul(r.omega)

			sample := trajectory.Sample{
				ComHeight: p.ComHeight,
			}
			sample.DCMPosition = dcm
			sample.DCMVelocity = dcmVel
			if s.foot == Right {
				sample.LeftFoot = stance
				sample.RightFoot = swingPose
				sample.RightTwist = swingTwist
				sample.LeftInContact = true
				sample.RightInContact = inDS
				sample.LeftFixed = true
				seg.LeftPhases = append(seg.LeftPhases, stancePhase(inDS))
				seg.RightPhases = append(seg.RightPhases, swingPhase(inDS))
			} else {
				sample.RightFoot = stance
				sample.LeftFoot = swingPose
				sample.LeftTwist = swingTwist
				sample.RightInContact = true
				sample.LeftInContact = inDS
				sample.LeftFixed = false
				seg.RightPhases = append(seg.RightPhases, stancePhase(inDS))
				seg.LeftPhases = append(seg.LeftPhases, swingPhase(inDS))
			}
			seg.Samples = append(seg.Samples, sample)
		}
		if s.foot == Right {
			curRight.Position = s.landing
		} else {
			curLeft.Position = s.landing
		}
	}

	// Trailing stand: both feet down, pendulum at rest.
	for t := 0; t <= tail; t++ {
		sample := trajectory.Sample{
			LeftFoot:       curLeft,
			RightFoot:      curRight,
			LeftInContact:  true,
			RightInContact: true,
			LeftFixed:      true,
			DCMPosition:    rest,
			ComHeight:      p.ComHeight,
		}
		seg.Samples = append(seg.Samples, sample)
		seg.LeftPhases = append(seg.LeftPhases, Stance)
		seg.RightPhases = append(seg.RightPhases, Stance)
	}
	return seg
}

func stancePhase(inDS bool) StepPhase {
	if inDS {
		return Switching
	}
	return Stance
}

func swingPhase(inDS bool) StepPhase {
	if inDS {
		return Switching
	}
	return Swing
}

// swingSample interpolates the swing foot from its lift-off pose to the
// landing with a smoothstep profile and a sinusoidal apex.
func swingSample(start trajectory.Pose, landing mgl64.Vec3, tau, apex, swingSeconds float64, inDS bool) (trajectory.Pose, trajectory.Twist) {
	if inDS {
		return start, trajectory.Twist{}
	}
	s := tau * tau * (3 - 2*tau)
	ds := 6 * tau * (1 - tau)

	delta := landing.Sub(start.Position)
	pose := start
	pose.Position = start.Position.Add(delta.Mul(s))
	pose.Position[2] = start.Position.Z() + apex*math.Sin(math.Pi*tau)

	twist := trajectory.Twist{
		Linear: delta.Mul(ds / swingSeconds),
	}
	twist.Linear[2] = apex * math.Pi * math.Cos(math.Pi*tau) / swingSeconds
	return pose, twist
}
