package model

import (
	"strings"
	"time"
)

// DecisionRecord is one logged decision. Records are append-only: after
// creation only Outcome and OutcomeTimestamp may change, via the store's
// UpdateOutcome operation. ID and Timestamp are immutable.
type DecisionRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Decision     string            `json:"decision"`
	Reason       string            `json:"reason"`
	Alternatives []string          `json:"alternatives"`
	Constraints  map[string]string `json:"constraints"`
	Outcome      string            `json:"outcome,omitempty"`
	// OutcomeTimestamp is set when the outcome is recorded post-hoc.
	OutcomeTimestamp *time.Time `json:"outcome_timestamp,omitempty"`
	Tags             []string   `json:"tags"`
	Snapshot         Snapshot   `json:"context_snapshot"`
}

// Snapshot captures the log state at insertion time.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	DecisionCount int       `json:"decision_count"`
}

// DecisionInput is the caller-supplied part of a new record. The store
// assigns ID, Timestamp, and Snapshot.
type DecisionInput struct {
	Decision     string            `json:"decision"`
	Reason       string            `json:"reason"`
	Alternatives []string          `json:"alternatives,omitempty"`
	Constraints  map[string]string `json:"constraints,omitempty"`
	Outcome      string            `json:"outcome,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// Known outcome values. Outcome is free text — callers may send anything —
// but these are the values the engines recognize.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRegret  = "regret"
	OutcomeUnknown = "unknown"
)

// regretOutcomes is the set of outcomes treated as "this went badly"
// by the regret predictor and the similar-regret search.
var regretOutcomes = map[string]bool{
	"failure": true,
	"regret":  true,
	"bad":     true,
}

// IsRegret reports whether an outcome counts as a regretted decision.
// Matching is case-insensitive against the regret synonym set; the empty
// outcome (not yet recorded) is never a regret.
func IsRegret(outcome string) bool {
	return regretOutcomes[strings.ToLower(strings.TrimSpace(outcome))]
}

// HasTag reports whether the record carries the given tag.
func (d DecisionRecord) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
