// Package walking hosts the orchestrator: the periodic task that sequences
// feedback acquisition, trajectory advancing, the feedback cascade, inverse
// kinematics and actuation, and owns the walking state machine.
package walking

// State is the orchestrator's FSM state.
type State int

const (
	// Configured: constructed, nothing prepared yet.
	Configured State = iota

	// Preparing: the robot is ramping to the initial posture.
	Preparing

	// Prepared: initial posture reached, integrators anchored.
	Prepared

	// Walking: the periodic tick is driving the gait.
	Walking

	// Paused: gait suspended, references frozen.
	Paused

	// Stopped: terminal until the next prepare. Entered on command or as
	// the fail-stop response to a tick failure.
	Stopped
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Preparing:
		return "preparing"
	case Prepared:
		return "prepared"
	case Walking:
		return "walking"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
