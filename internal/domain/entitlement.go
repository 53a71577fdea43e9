package domain

// EntitlementStatus is the backend source-of-truth classification of an
// account. It never takes a bare "trial" value; trial is a project mode.
type EntitlementStatus string

const (
	EntitlementNone        EntitlementStatus = "none"
	EntitlementTrialOneRun EntitlementStatus = "trial_one_run"
	EntitlementPaid        EntitlementStatus = "paid"
)

// AccessState is the UI-facing projection derived from entitlement facts.
type AccessState string

const (
	AccessNone           AccessState = "NONE"
	AccessTrialAvailable AccessState = "TRIAL_AVAILABLE"
	AccessTrialActive    AccessState = "TRIAL_ACTIVE"
	AccessPaid           AccessState = "PAID"
)

// EntitlementFacts is the raw input to the resolver, supplied by the facts
// source. Inconsistent combinations are passed through unfiltered; judging
// them is the validator's job.
type EntitlementFacts struct {
	Authenticated      bool
	ActiveSubscription bool
	TrialConsumed      bool
	TrialProjectID     string
	PillarUsage        map[Pillar]int
}

// Quotas carries the per-pillar answer-submission ceiling. PerPillarUsed is
// total: every pillar key is present, absent counts default to zero.
type Quotas struct {
	PerPillarMax  int            `json:"perPillarMax"`
	PerPillarUsed map[Pillar]int `json:"perPillarUsed"`
}

// RateLimit carries the mutating-call ceiling per rolling hour. Enforcement
// lives in the transport layer; the resolver only reports the value.
type RateLimit struct {
	PerHourMax int `json:"perHourMax"`
}

// QuotaConfig holds the configured ceilings applied to every resolution.
type QuotaConfig struct {
	PerPillarMax int
	PerHourMax   int
}

// GetEntitlementsOutput is the single source of truth consumers branch on.
type GetEntitlementsOutput struct {
	EntitlementStatus EntitlementStatus `json:"entitlement_status"`
	AccessState       AccessState       `json:"accessState"`
	TrialProjectID    *string           `json:"trialProjectId"`
	Quotas            Quotas            `json:"quotas"`
	RateLimit         RateLimit         `json:"rateLimit"`
}

// Resolve derives the canonical access state from entitlement facts. It is
// pure and total: it never fails and always returns a complete shape, even
// for unauthenticated callers. Precedence, in order: authentication, active
// subscription, existing trial project, unconsumed trial.
//
// The combination "trial consumed, no subscription, no linked project" is
// deliberately emitted as TRIAL_ACTIVE with a nil project id so that the
// validator reports it instead of any consumer guessing a state; it must
// never resolve to TRIAL_AVAILABLE.
func Resolve(facts EntitlementFacts, cfg QuotaConfig) GetEntitlementsOutput {
	out := GetEntitlementsOutput{
		Quotas: Quotas{
			PerPillarMax:  cfg.PerPillarMax,
			PerPillarUsed: totalUsage(facts.PillarUsage),
		},
		RateLimit: RateLimit{PerHourMax: cfg.PerHourMax},
	}

	switch {
	case !facts.Authenticated:
		out.EntitlementStatus = EntitlementNone
		out.AccessState = AccessNone
	case facts.ActiveSubscription:
		out.EntitlementStatus = EntitlementPaid
		out.AccessState = AccessPaid
		if facts.TrialProjectID != "" {
			id := facts.TrialProjectID
			out.TrialProjectID = &id
		}
	case facts.TrialProjectID != "":
		out.EntitlementStatus = EntitlementTrialOneRun
		out.AccessState = AccessTrialActive
		id := facts.TrialProjectID
		out.TrialProjectID = &id
	case !facts.TrialConsumed:
		out.EntitlementStatus = EntitlementNone
		out.AccessState = AccessTrialAvailable
	default:
		out.EntitlementStatus = EntitlementTrialOneRun
		out.AccessState = AccessTrialActive
	}

	return out
}

func totalUsage(sparse map[Pillar]int) map[Pillar]int {
	used := make(map[Pillar]int, 4)
	for _, p := range Pillars() {
		used[p] = sparse[p]
	}
	return used
}
