// Package bias scans the decision log for recurring cognitive biases.
//
// Two detector families run: keyword rules over decision and reason text
// (overengineering, tool switching, and friends), and pattern rules over
// the aggregate summary (a single dominant preference, untracked outcomes).
package bias

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/patterns"
	"github.com/kagami-ai/kagami/internal/store"
)

// maxExamples caps the evidence list per finding.
const maxExamples = 3

// dominantPreferenceRatio flags a preference holding more than this share
// of all preference mentions.
const dominantPreferenceRatio = 0.6

// unknownOutcomeRatio flags a log where more than this share of decisions
// never got an outcome.
const unknownOutcomeRatio = 0.5

// rule is one keyword-based bias detector. The score is the number of
// keyword hits across the log; a decision mentioning two keywords counts
// twice.
type rule struct {
	name        string
	keywords    []string
	threshold   int
	description string
}

var rules = []rule{
	{
		name:        "overengineering",
		keywords:    []string{"complex", "sophisticated", "advanced", "comprehensive"},
		threshold:   3,
		description: "Tendency to choose complex solutions over simple ones",
	},
	{
		name:        "tool_switching",
		keywords:    []string{"new tool", "switch to", "migrate to", "try"},
		threshold:   4,
		description: "Frequent switching between tools without full evaluation",
	},
	{
		name:        "premature_optimization",
		keywords:    []string{"optimize", "performance", "faster", "efficient"},
		threshold:   5,
		description: "Optimizing before establishing baseline functionality",
	},
	{
		name:        "recency_bias",
		keywords:    []string{"latest", "new", "recent", "modern"},
		threshold:   4,
		description: "Overvaluing recent information or trends",
	},
	{
		name:        "sunk_cost",
		keywords:    []string{"already invested", "spent time", "too late", "committed"},
		threshold:   2,
		description: "Continuing with decisions due to past investment",
	},
	{
		name:        "confirmation_bias",
		keywords:    []string{"as expected", "proves", "confirms", "validates"},
		threshold:   3,
		description: "Seeking information that confirms existing beliefs",
	},
}

// Example is one decision cited as evidence for a finding.
type Example struct {
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Finding is one detected bias. Keyword findings carry Examples; pattern
// findings carry Detail.
type Finding struct {
	Bias        string         `json:"bias"`
	Score       float64        `json:"score"`
	Description string         `json:"description"`
	Examples    []Example      `json:"evidence,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Detector scans a decision log for biases.
type Detector struct {
	log store.Log
}

// New creates a Detector over the given log.
func New(log store.Log) *Detector {
	return &Detector{log: log}
}

// Detect reads the full timeline and returns all findings, keyword rules
// first, then pattern findings.
func (d *Detector) Detect(ctx context.Context) ([]Finding, error) {
	records, err := d.log.Timeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("bias: load timeline: %w", err)
	}
	summary := patterns.Summarize(records)
	return Scan(records, summary), nil
}

// Scan runs all detectors over records and the precomputed summary.
func Scan(records []model.DecisionRecord, summary patterns.Summary) []Finding {
	var findings []Finding

	for _, r := range rules {
		score := r.score(records)
		if score >= r.threshold {
			findings = append(findings, Finding{
				Bias:        r.name,
				Score:       float64(score),
				Description: r.description,
				Examples:    r.evidence(records),
			})
		}
	}

	findings = append(findings, patternFindings(summary)...)
	return findings
}

func (r rule) score(records []model.DecisionRecord) int {
	score := 0
	for _, rec := range records {
		text := decisionText(rec)
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
	}
	return score
}

// evidence returns up to three decisions mentioning any rule keyword.
func (r rule) evidence(records []model.DecisionRecord) []Example {
	var out []Example
	for _, rec := range records {
		text := decisionText(rec)
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				out = append(out, Example{
					Decision:  rec.Decision,
					Reason:    rec.Reason,
					Timestamp: rec.Timestamp,
				})
				break
			}
		}
		if len(out) >= maxExamples {
			break
		}
	}
	return out
}

func decisionText(rec model.DecisionRecord) string {
	return strings.ToLower(rec.Decision + " " + rec.Reason)
}

// patternFindings checks the aggregate summary for a dominant preference
// and for untracked outcomes.
func patternFindings(summary patterns.Summary) []Finding {
	var findings []Finding

	if len(summary.Preferences) > 0 {
		dominant := ""
		maxCount, total := 0, 0
		keys := make([]string, 0, len(summary.Preferences))
		for k := range summary.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n := summary.Preferences[k]
			total += n
			if n > maxCount {
				maxCount = n
				dominant = k
			}
		}
		if total > 0 {
			ratio := float64(maxCount) / float64(total)
			if ratio > dominantPreferenceRatio {
				findings = append(findings, Finding{
					Bias:        "single_dimension_thinking",
					Score:       ratio,
					Description: fmt.Sprintf("Over-focusing on %s at expense of other factors", dominant),
					Detail:      map[string]any{"preference": dominant, "frequency": maxCount},
				})
			}
		}
	}

	out := summary.OutcomePatterns
	totalOutcomes := out.Success + out.Failure + out.Unknown
	if totalOutcomes > 0 {
		ratio := float64(out.Unknown) / float64(totalOutcomes)
		if ratio > unknownOutcomeRatio {
			findings = append(findings, Finding{
				Bias:        "outcome_avoidance",
				Score:       ratio,
				Description: "Not tracking or evaluating decision outcomes",
				Detail:      map[string]any{"unknown_outcomes": out.Unknown, "total": totalOutcomes},
			})
		}
	}

	return findings
}
