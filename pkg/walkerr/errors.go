// Package walkerr provides the unified error taxonomy of the walking
// controller. Every internal step returns an error of this package; the
// orchestrator aggregates them and stops a control tick at the first failure.
package walkerr

import "fmt"

// Code is the category of a controller error.
type Code string

const (
	// Configuration errors, detected at initialization. Fatal.
	ErrConfigMissing    Code = "CONFIG_MISSING"
	ErrConfigValidation Code = "CONFIG_VALIDATION"

	// Feedback errors, detected per tick. Trigger fail-stop.
	ErrFeedbackTimeout Code = "FEEDBACK_TIMEOUT"
	ErrFeedbackContact Code = "FEEDBACK_CONTACT"

	// Numerical errors from the QP-based components. Trigger fail-stop.
	ErrNumericalInfeasible Code = "NUMERICAL_INFEASIBLE"
	ErrNumericalSolver     Code = "NUMERICAL_SOLVER"
	ErrNumericalIK         Code = "NUMERICAL_IK"

	// Scheduling errors from the merge scheduler. Rejected at the call.
	ErrSchedulingMerge      Code = "SCHEDULING_MERGE"
	ErrSchedulingSaturation Code = "SCHEDULING_SATURATION"

	// Generic runtime failures (state machine misuse, planner unavailable).
	ErrRuntime Code = "RUNTIME"
)

// Error is the unified error type of the controller.
type Error struct {
	Code    Code
	Message string
	Context map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error { return e.Err }

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error with the given code.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// ConfigMissing reports a missing configuration option.
func ConfigMissing(section, option string) *Error {
	return New(ErrConfigMissing, "option %q not found in section %q", option, section).
		WithContext("section", section).
		WithContext("option", option)
}

// ConfigValidation reports an invalid configuration value.
func ConfigValidation(section, option, reason string) *Error {
	return New(ErrConfigValidation, "option %q in section %q: %s", option, section, reason).
		WithContext("section", section).
		WithContext("option", option)
}

// FeedbackTimeout reports a sensor acquisition timeout.
func FeedbackTimeout(source string, timeoutMs int) *Error {
	return New(ErrFeedbackTimeout, "no feedback from %s within %d ms", source, timeoutMs).
		WithContext("source", source)
}

// Infeasible reports QP infeasibility.
func Infeasible(problem string) *Error {
	return New(ErrNumericalInfeasible, "%s: problem is infeasible", problem)
}

// SolverFailure reports a numerical failure inside an optimizer.
func SolverFailure(problem, reason string) *Error {
	return New(ErrNumericalSolver, "%s: %s", problem, reason)
}

// MergeRejected reports an invalid merge-point request.
func MergeRejected(reason string) *Error {
	return New(ErrSchedulingMerge, "merge request rejected: %s", reason)
}

// Is reports whether err is a walkerr.Error carrying the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Code == code
}

// IsConfig reports whether err belongs to the configuration category.
func IsConfig(err error) bool {
	return Is(err, ErrConfigMissing) || Is(err, ErrConfigValidation)
}

// IsNumerical reports whether err belongs to the numerical category.
func IsNumerical(err error) bool {
	return Is(err, ErrNumericalInfeasible) || Is(err, ErrNumericalSolver) ||
		Is(err, ErrNumericalIK)
}

// IsFailStop reports whether err must force the controller into the
// Stopped state. Feedback and numerical errors are unrecoverable within a
// tick: continuing with a stale command is unsafe.
func IsFailStop(err error) bool {
	return Is(err, ErrFeedbackTimeout) || Is(err, ErrFeedbackContact) || IsNumerical(err)
}
