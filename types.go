package kagami

import "time"

// Decision is the public representation of a logged decision.
// It is a curated view of internal/model.DecisionRecord for use in extension
// interfaces. No internal package imports — safe to use from outside the module.
type Decision struct {
	ID           string
	Timestamp    time.Time
	Decision     string
	Reason       string
	Alternatives []string
	Constraints  map[string]string
	Outcome      string
	OutcomeAt    *time.Time
	Tags         []string
}

// Warning is one fired intervention rule.
type Warning struct {
	Rule     string
	Severity string // minimal | low | medium | high | critical
	Message  string
	// DelaySeconds is the suggested pause before committing to the decision.
	DelaySeconds int
}

// CheckResult is the outcome of an intervention check at log time.
type CheckResult struct {
	ShouldIntervene bool
	AllowOverride   bool
	Warnings        []Warning
}
