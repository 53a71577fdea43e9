package domain

// ViolationCode identifies a structural invariant breach in entitlement data.
type ViolationCode string

// ViolationTrialActiveMissingProjectID is reported when the access state is
// TRIAL_ACTIVE without an associated trial project id.
const ViolationTrialActiveMissingProjectID ViolationCode = "TRIAL_ACTIVE_MISSING_PROJECT_ID"

// Violation is a detectable, reportable invariant breach. It is never a
// crash and never a fallback state.
type Violation struct {
	Code ViolationCode
}

func (v *Violation) Error() string {
	return "entitlement invariant violated: " + string(v.Code)
}

// ValidateEntitlements judges a resolver output before any consumer branches
// on its access state. A nil result means the output is structurally sound;
// otherwise consumers must surface an internal error carrying the violation
// code instead of guessing a state.
func ValidateEntitlements(out GetEntitlementsOutput) *Violation {
	if out.AccessState == AccessTrialActive && (out.TrialProjectID == nil || *out.TrialProjectID == "") {
		return &Violation{Code: ViolationTrialActiveMissingProjectID}
	}
	return nil
}
