package walking

import (
	"context"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"walking-go/pkg/adaptation"
	"walking-go/pkg/config"
	"walking-go/pkg/lipm"
	"walking-go/pkg/planner"
	"walking-go/pkg/robot"
	"walking-go/pkg/trajectory"
	"walking-go/pkg/walkerr"
)

// adaptDuringLeftSwing gates the mirrored left-swing adaptation branch.
// Only the right-swing case is active; do not symmetrize without gait-level
// validation.
const adaptDuringLeftSwing = false

// Support rectangle half extents of one foot sole, in meters.
const (
	halfFootLength = 0.06
	halfFootWidth  = 0.03
)

// Deps are the injected collaborators. All of them are required.
type Deps struct {
	Planner  planner.Planner
	Feedback robot.FeedbackProvider
	IK       robot.IKSolver
	Actuator robot.Actuator
	Log      *logrus.Entry
}

// Status is a snapshot of the orchestrator for the command surface.
type Status struct {
	State    State
	Time     float64
	DCMError mgl64.Vec2
}

type cmdKind int

const (
	cmdPrepare cmdKind = iota
	cmdStart
	cmdStop
	cmdPause
	cmdSetGoal
	cmdStatus
)

type request struct {
	kind  cmdKind
	goal  mgl64.Vec2
	reply chan response
}

type response struct {
	err    error
	status Status
}

// Orchestrator owns all walking state. A single goroutine (Run) consumes
// both the periodic tick and the command channel, so no tick and no command
// ever execute concurrently; the public methods only enqueue and wait.
type Orchestrator struct {
	cfg *config.Config
	log *logrus.Entry

	planner  planner.Planner
	feedback robot.FeedbackProvider
	ik       robot.IKSolver
	actuator robot.Actuator

	dT    float64
	omega float64

	state State
	time  float64

	buffers   *trajectory.Buffers
	scheduler *trajectory.Scheduler

	leftSteps   []planner.Footstep
	rightSteps  []planner.Footstep
	leftPhases  []planner.StepPhase
	rightPhases []planner.StepPhase
	phaseIndex  int

	dcmModel  *lipm.StableDCMModel
	dcmCtl    lipm.DCMController
	zmpCtl    *lipm.ZMPController
	adaptator *adaptation.Adaptator
	zmpMeas   *ZMPMeasurer

	goal        mgl64.Vec2
	pendingGoal *mgl64.Vec2

	lastDCMError mgl64.Vec2

	// AdaptedStep is the last correction emitted by the step adaptator.
	adaptedPosition float64
	adaptedImpact   float64
	adapted         bool

	requests chan request
	done     chan struct{}
}

// New wires the orchestrator from validated configuration and injected
// collaborators.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if deps.Planner == nil || deps.Feedback == nil || deps.IK == nil || deps.Actuator == nil {
		return nil, walkerr.New(walkerr.ErrConfigMissing, "orchestrator requires all collaborators")
	}
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	omega := lipm.Omega(cfg.General.ComHeight)
	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		planner:   deps.Planner,
		feedback:  deps.Feedback,
		ik:        deps.IK,
		actuator:  deps.Actuator,
		dT:        cfg.General.SamplingTime,
		omega:     omega,
		state:     Configured,
		buffers:   trajectory.NewBuffers(),
		scheduler: trajectory.NewScheduler(),
		dcmModel:  lipm.NewStableDCMModel(omega, cfg.General.SamplingTime),
		requests:  make(chan request),
		done:      make(chan struct{}),
	}

	if cfg.General.UseMPC {
		ctl, err := lipm.NewPredictiveDCMController(
			cfg.DCMController.Horizon,
			cfg.DCMController.StateWeight,
			cfg.DCMController.InputWeight,
			omega, cfg.General.SamplingTime)
		if err != nil {
			return nil, err
		}
		o.dcmCtl = ctl
	} else {
		o.dcmCtl = lipm.NewReactiveDCMController(cfg.DCMController.Gain, omega)
	}

	o.zmpCtl = lipm.NewZMPController(
		lipm.ZMPControllerGains{KZmp: cfg.ZMPController.KZmpStance, KCom: cfg.ZMPController.KComStance},
		lipm.ZMPControllerGains{KZmp: cfg.ZMPController.KZmpWalking, KCom: cfg.ZMPController.KComWalking},
		cfg.General.SamplingTime)

	if cfg.General.UseStepAdaptation {
		adaptator, err := adaptation.New(
			adaptation.Gains{
				Zmp:      cfg.StepAdaptation.ZmpWeight,
				Offset:   cfg.StepAdaptation.OffsetWeight,
				Sigma:    cfg.StepAdaptation.SigmaWeight,
				Coupling: cfg.StepAdaptation.CouplingWeight,
			},
			adaptation.Tolerances{
				Zmp:      cfg.StepAdaptation.ZmpTolerance,
				Duration: cfg.StepAdaptation.DurationTolerance,
			})
		if err != nil {
			return nil, err
		}
		o.adaptator = adaptator
	}

	zmpMeas, err := NewZMPMeasurer(cfg.ZMPMeasurement)
	if err != nil {
		return nil, err
	}
	o.zmpMeas = zmpMeas
	return o, nil
}

// Run is the actor loop. It blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(o.dT * float64(time.Second)))
	defer ticker.Stop()
	defer close(o.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-o.requests:
			req.reply <- o.handle(req)
		case <-ticker.C:
			o.onTick()
		}
	}
}

// Prepare moves the robot to the initial posture and plans the first
// segment. Valid from Configured or Stopped.
func (o *Orchestrator) Prepare() error { return o.send(request{kind: cmdPrepare}) }

// Start begins (or resumes) walking. Valid from Prepared or Paused.
func (o *Orchestrator) Start() error { return o.send(request{kind: cmdStart}) }

// Stop halts the gait. A new Prepare is required afterwards.
func (o *Orchestrator) Stop() error { return o.send(request{kind: cmdStop}) }

// Pause suspends the gait, keeping the buffered references.
func (o *Orchestrator) Pause() error { return o.send(request{kind: cmdPause}) }

// SetGoal steers the walking direction. Consumed at the next tick.
func (o *Orchestrator) SetGoal(x, y float64) error {
	return o.send(request{kind: cmdSetGoal, goal: mgl64.Vec2{x, y}})
}

// Status returns a state snapshot.
func (o *Orchestrator) Status() Status {
	req := request{kind: cmdStatus, reply: make(chan response, 1)}
	select {
	case o.requests <- req:
		return (<-req.reply).status
	case <-o.done:
		return Status{State: o.state, Time: o.time}
	}
}

func (o *Orchestrator) send(req request) error {
	req.reply = make(chan response, 1)
	select {
	case o.requests <- req:
		return (<-req.reply).err
	case <-o.done:
		return walkerr.New(walkerr.ErrRuntime, "orchestrator is not running")
	}
}

func (o *Orchestrator) handle(req request) response {
	switch req.kind {
	case cmdPrepare:
		return response{err: o.prepare()}
	case cmdStart:
		return response{err: o.start()}
	case cmdStop:
		return response{err: o.stopCommand()}
	case cmdPause:
		return response{err: o.pause()}
	case cmdSetGoal:
		return response{err: o.setGoal(req.goal)}
	case cmdStatus:
		return response{status: Status{State: o.state, Time: o.time, DCMError: o.lastDCMError}}
	default:
		return response{err: walkerr.New(walkerr.ErrRuntime, "unknown command %d", req.kind)}
	}
}

func (o *Orchestrator) onTick() {
	switch o.state {
	case Preparing:
		done, err := o.actuator.CheckMotionDone()
		if err != nil {
			o.failStop(walkerr.Wrap(err, walkerr.ErrRuntime, "motion check failed"))
			return
		}
		if done {
			if err := o.finishPreparation(); err != nil {
				o.failStop(err)
			}
		}
	case Walking:
		if err := o.walkingTick(); err != nil {
			o.failStop(err)
		}
	}
}

func (o *Orchestrator) prepare() error {
	if o.state != Configured && o.state != Stopped {
		return walkerr.New(walkerr.ErrRuntime, "prepare not allowed in state %s", o.state)
	}

	if _, err := o.feedback.GetFeedback(o.cfg.General.FeedbackTimeoutMs); err != nil {
		return o.asFeedbackErr(err)
	}

	if err := o.planner.GenerateFirstSegment(o.goal); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "first segment generation failed")
	}
	seg, err := o.planner.Segment()
	if err != nil {
		return err
	}
	if err := o.buffers.Load(seg.Samples, seg.MergePoints); err != nil {
		return err
	}
	o.adoptSegment(seg, 0)

	if err := o.actuator.SwitchControlMode(robot.ModePosition); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "control mode switch failed")
	}
	front := o.buffers.Front()
	com := mgl64.Vec3{front.DCMPosition.X(), front.DCMPosition.Y(), front.ComHeight}
	joints, err := o.ik.ComputeCommand(front.LeftFoot, front.RightFoot, com)
	if err != nil {
		return o.asIKErr(err)
	}
	if err := o.actuator.SetPositionReferences(joints); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "initial posture command failed")
	}

	o.time = 0
	o.state = Preparing
	o.log.Info("preparing initial posture")
	return nil
}

// finishPreparation anchors every integrator on the first buffered DCM
// sample and arms the direct position mode.
func (o *Orchestrator) finishPreparation() error {
	front := o.buffers.Front()
	o.dcmModel.Reset(front.DCMPosition)
	o.zmpCtl.Reset(front.DCMPosition)
	o.dcmCtl.Reset()
	if o.adaptator != nil {
		o.adaptator.Reset()
	}
	if err := o.actuator.SwitchControlMode(robot.ModePositionDirect); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "control mode switch failed")
	}
	o.state = Prepared
	o.log.Info("robot prepared")
	return nil
}

func (o *Orchestrator) start() error {
	if o.state != Prepared && o.state != Paused {
		return walkerr.New(walkerr.ErrRuntime, "start not allowed in state %s", o.state)
	}
	o.state = Walking
	o.log.Info("walking started")
	return nil
}

func (o *Orchestrator) pause() error {
	if o.state != Walking {
		return walkerr.New(walkerr.ErrRuntime, "pause not allowed in state %s", o.state)
	}
	o.state = Paused
	o.log.Info("walking paused")
	return nil
}

func (o *Orchestrator) stopCommand() error {
	switch o.state {
	case Prepared, Walking, Paused, Preparing:
		o.reset()
		o.state = Stopped
		o.log.Info("walking stopped")
		return nil
	default:
		return walkerr.New(walkerr.ErrRuntime, "stop not allowed in state %s", o.state)
	}
}

func (o *Orchestrator) setGoal(goal mgl64.Vec2) error {
	if o.state != Walking && o.state != Prepared {
		return walkerr.New(walkerr.ErrRuntime, "set goal not allowed in state %s", o.state)
	}
	g := goal
	o.pendingGoal = &g
	return nil
}

// walkingTick runs one control period. The first failing step aborts the
// tick; the caller transitions to Stopped without issuing a command.
func (o *Orchestrator) walkingTick() error {
	// Goal input and terminal re-issue, then the merge protocol.
	if o.pendingGoal != nil {
		goal := *o.pendingGoal
		o.pendingGoal = nil
		if err := o.scheduler.Request(o.buffers, goal); err != nil {
			return err
		}
		// The scheduler may drop a goal arriving mid-request; track
		// whatever it actually stored.
		o.goal = o.scheduler.Goal()
	}
	if front, ok := o.buffers.FrontMergePoint(); ok &&
		front == trajectory.RequestLookahead+1 && !o.scheduler.Pending() {
		if err := o.scheduler.Request(o.buffers, o.goal); err != nil {
			return err
		}
	}
	if o.scheduler.ShouldAsk() {
		if err := o.askPlanner(); err != nil {
			return err
		}
	}
	if o.scheduler.ShouldGraft() {
		if err := o.graft(); err != nil {
			return err
		}
	}

	fb, err := o.feedback.GetFeedback(o.cfg.General.FeedbackTimeoutMs)
	if err != nil {
		return o.asFeedbackErr(err)
	}

	front := o.buffers.Front()
	fixedPose := fb.RightFootPose
	if front.LeftFixed {
		fixedPose = fb.LeftFootPose
	}
	if err := o.feedback.UpdateWorldToBase(fixedPose, front.LeftFixed); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "world-to-base update failed")
	}

	zmpMeasured, err := o.zmpMeas.Evaluate(fb.LeftWrench, fb.RightWrench, fb.LeftFootPose, fb.RightFootPose)
	if err != nil {
		return err
	}
	comMeasured := mgl64.Vec2{fb.ComPosition.X(), fb.ComPosition.Y()}

	if err := o.dcmModel.Integrate(front.DCMPosition); err != nil {
		return err
	}

	if err := o.adaptStep(fb, zmpMeasured); err != nil {
		return err
	}

	o.dcmCtl.SetFeedback(fb.DCM)
	o.dcmCtl.SetReference(lipm.Reference{
		Position: front.DCMPosition,
		Velocity: front.DCMVelocity,
		Horizon:  o.buffers.DCMHorizon(o.cfg.DCMController.Horizon),
		Support:  o.supportRect(front),
	})
	if err := o.dcmCtl.Evaluate(); err != nil {
		return err
	}
	zmpDesired := o.dcmCtl.Output()

	o.zmpCtl.SetPhase(front.DCMVelocity.Len() < lipm.StancePhaseThreshold)
	o.zmpCtl.SetFeedback(zmpMeasured, comMeasured)
	o.zmpCtl.SetReference(zmpDesired, o.dcmModel.ComPosition(), o.dcmModel.ComVelocity())
	if err := o.zmpCtl.Evaluate(); err != nil {
		return err
	}
	comPosRef, _ := o.zmpCtl.Output()

	com := mgl64.Vec3{comPosRef.X(), comPosRef.Y(), front.ComHeight}
	joints, err := o.ik.ComputeCommand(front.LeftFoot, front.RightFoot, com)
	if err != nil {
		return o.asIKErr(err)
	}
	if err := o.actuator.SetPositionReferences(joints); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "joint command failed")
	}

	if err := o.buffers.Advance(); err != nil {
		return err
	}
	o.scheduler.Decrement()
	o.phaseIndex++
	o.time += o.dT
	o.lastDCMError = front.DCMPosition.Sub(fb.DCM)
	return nil
}

// askPlanner issues the asynchronous replanning request, anchored at the
// fixed foot's buffered transform at the merge index.
func (o *Orchestrator) askPlanner() error {
	mergeIndex := o.scheduler.Counter()
	if mergeIndex >= o.buffers.Horizon() {
		return walkerr.MergeRejected("merge index beyond the buffered horizon")
	}
	anchor := o.buffers.At(mergeIndex)
	fixedPose := anchor.RightFoot
	if anchor.LeftFixed {
		fixedPose = anchor.LeftFoot
	}
	initTime := o.time + float64(mergeIndex)*o.dT
	if err := o.planner.RequestUpdate(initTime, fixedPose, anchor.LeftFixed, mergeIndex, o.scheduler.Goal()); err != nil {
		return walkerr.Wrap(err, walkerr.ErrRuntime, "planner update request failed")
	}
	return nil
}

// graft splices the computed segment and treats the tick as a trajectory
// discontinuity: every integrator is re-anchored.
func (o *Orchestrator) graft() error {
	if !o.planner.IsComputed() {
		return walkerr.New(walkerr.ErrRuntime, "planner did not deliver a segment in time")
	}
	seg, err := o.planner.Segment()
	if err != nil {
		return err
	}
	at := o.scheduler.Counter()
	if err := o.buffers.Splice(seg.Samples, seg.MergePoints, at); err != nil {
		return err
	}
	o.scheduler.Complete()
	o.adoptSegment(seg, -at)

	front := o.buffers.Front()
	o.dcmModel.Reset(front.DCMPosition)
	o.zmpCtl.Reset(front.DCMPosition)
	o.dcmCtl.Reset()
	o.log.WithField("splice_index", at).Debug("segment grafted")
	return nil
}

// adoptSegment takes over the step lists and phase tables of a segment.
// phaseOffset shifts the phase index when the segment starts in the future.
func (o *Orchestrator) adoptSegment(seg *planner.Segment, phaseOffset int) {
	o.leftSteps = seg.LeftSteps
	o.rightSteps = seg.RightSteps
	o.leftPhases = seg.LeftPhases
	o.rightPhases = seg.RightPhases
	o.phaseIndex = phaseOffset
}

// adaptStep runs the step adaptation QP when the right foot is mid-swing
// with a landing still ahead of it.
func (o *Orchestrator) adaptStep(fb *robot.Feedback, zmpMeasured mgl64.Vec2) error {
	if o.adaptator == nil {
		return nil
	}
	idx := o.phaseIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(o.rightPhases) {
		return nil
	}

	if o.rightPhases[idx] == planner.Swing && len(o.rightSteps) > 1 {
		return o.solveAdaptation(o.rightSteps[1], fb, zmpMeasured)
	}
	if adaptDuringLeftSwing && o.leftPhases[idx] == planner.Swing && len(o.leftSteps) > 1 {
		return o.solveAdaptation(o.leftSteps[1], fb, zmpMeasured)
	}
	return nil
}

func (o *Orchestrator) solveAdaptation(next planner.Footstep, fb *robot.Feedback, zmpMeasured mgl64.Vec2) error {
	dsDuration := o.planner.StepDuration() * o.planner.DoubleSupportRatio()
	stepTiming := next.ImpactTime + dsDuration/2 - o.time
	if stepTiming <= o.dT {
		// Touchdown is imminent; adapting now would demand an
		// impossible timing change.
		return nil
	}
	offsetNom := o.planner.NominalDCMOffset()

	problem := adaptation.Problem{
		NominalNextPosition: next.Position.X(),
		NominalSigma:        math.Exp(o.omega * stepTiming),
		NominalDCMOffset:    offsetNom,
		NominalNextDCM:      next.Position.X() + offsetNom,
		Omega:               o.omega,
	}
	// The current-side offset of the touchdown equality is zero; the
	// correction variable carries the whole offset.
	measured := adaptation.Measured{
		Zmp: zmpMeasured.X(),
		Dcm: fb.DCM.X(),
	}
	if err := o.adaptator.Solve(problem, measured); err != nil {
		return err
	}

	position, err := o.adaptator.NextStepPosition()
	if err != nil {
		return err
	}
	impact, err := o.adaptator.ImpactTime(o.time, dsDuration)
	if err != nil {
		return err
	}
	o.adaptedPosition = position
	o.adaptedImpact = impact
	o.adapted = true
	return nil
}

// supportRect builds the axis-aligned ZMP admissible region from the feet
// currently in contact, inflated by the configured margin.
func (o *Orchestrator) supportRect(front trajectory.Sample) lipm.SupportRect {
	margin := o.cfg.DCMController.SupportMargin
	rect := lipm.SupportRect{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	include := func(p mgl64.Vec3) {
		rect.MinX = math.Min(rect.MinX, p.X()-halfFootLength-margin)
		rect.MaxX = math.Max(rect.MaxX, p.X()+halfFootLength+margin)
		rect.MinY = math.Min(rect.MinY, p.Y()-halfFootWidth-margin)
		rect.MaxY = math.Max(rect.MaxY, p.Y()+halfFootWidth+margin)
	}
	if front.LeftInContact {
		include(front.LeftFoot.Position)
	}
	if front.RightInContact {
		include(front.RightFoot.Position)
	}
	return rect
}

// failStop is the unrecoverable-error path: log, reset, Stopped, and no
// joint command for this tick.
func (o *Orchestrator) failStop(err error) {
	o.log.WithError(err).Error("control tick failed, stopping")
	o.reset()
	o.state = Stopped
}

func (o *Orchestrator) reset() {
	o.scheduler.Complete()
	o.pendingGoal = nil
	o.adapted = false
	o.dcmCtl.Reset()
	if o.adaptator != nil {
		o.adaptator.Reset()
	}
}

func (o *Orchestrator) asFeedbackErr(err error) error {
	if _, ok := err.(*walkerr.Error); ok {
		return err
	}
	return walkerr.Wrap(err, walkerr.ErrFeedbackTimeout,
		"feedback acquisition failed within %d ms", o.cfg.General.FeedbackTimeoutMs)
}

func (o *Orchestrator) asIKErr(err error) error {
	if _, ok := err.(*walkerr.Error); ok {
		return err
	}
	return walkerr.Wrap(err, walkerr.ErrNumericalIK, "inverse kinematics failed")
}

// AdaptedStep returns the last step-adaptation output, when one exists.
func (o *Orchestrator) AdaptedStep() (position, impactTime float64, ok bool) {
	return o.adaptedPosition, o.adaptedImpact, o.adapted
}
