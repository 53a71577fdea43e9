package domain

import "fmt"

// Operation names an entry point guarded by the access-state gate.
type Operation string

const (
	OpViewAccessGate Operation = "view_access_gate"
	OpViewDashboard  Operation = "view_dashboard"
	OpStartTrial     Operation = "start_trial"
)

// Decision is the gate's verdict for one (state, operation) pair. Exactly one
// of Allowed, RedirectToProject, RedirectToGate or Deny applies. A redirect
// is a routing signal, not a denial.
type Decision struct {
	Allowed           bool
	RedirectToProject bool
	RedirectToGate    bool
	Deny              ErrorCode
}

// Authorize decides whether an operation is legal in the given access state.
// The dispatch is closed over the known states and operations; any pair that
// falls through is an internal error, never a guessed verdict.
func Authorize(state AccessState, op Operation) (Decision, error) {
	switch op {
	case OpViewAccessGate:
		switch state {
		case AccessNone, AccessTrialAvailable, AccessTrialActive, AccessPaid:
			return Decision{Allowed: true}, nil
		}
	case OpViewDashboard:
		switch state {
		case AccessNone:
			return Decision{RedirectToGate: true}, nil
		case AccessTrialAvailable, AccessTrialActive, AccessPaid:
			return Decision{Allowed: true}, nil
		}
	case OpStartTrial:
		switch state {
		case AccessNone:
			return Decision{Deny: CodeForbidden}, nil
		case AccessTrialAvailable, AccessPaid:
			return Decision{Allowed: true}, nil
		case AccessTrialActive:
			// A second concurrent trial is structurally disallowed; route the
			// caller to the project that already exists.
			return Decision{RedirectToProject: true}, nil
		}
	}
	return Decision{}, fmt.Errorf("unhandled access decision: state=%s op=%s", state, op)
}
