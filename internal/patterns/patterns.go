// Package patterns summarizes the decision log into the user's recurring
// preferences, themes, constraints, and outcome history.
//
// The detectors are deliberately shallow keyword scans. They run over the
// full log on every call; with a personal log measured in hundreds of
// records there is no point caching.
package patterns

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/store"
)

// preferenceKeywords maps a preference category to the reason-text keywords
// that count toward it. A reason mentioning any keyword counts the category
// once per decision, regardless of how many keywords it hits.
var preferenceKeywords = map[string][]string{
	"efficiency":  {"efficient", "performance"},
	"simplicity":  {"simple", "minimal"},
	"scalability": {"scalable", "scale"},
	"speed":       {"fast", "quick"},
	"reliability": {"reliable", "stable"},
	"innovation":  {"novel", "innovative"},
}

// successOutcomes and failureOutcomes bucket free-text outcomes for the
// outcome summary. Anything else (including empty) counts as unknown.
var (
	successOutcomes = map[string]bool{"success": true, "successful": true, "good": true}
	failureOutcomes = map[string]bool{"failure": true, "failed": true, "bad": true}
)

// maxThemes caps the recurring-themes list.
const maxThemes = 10

// shiftThreshold is the minimum early/recent count difference for a
// preference shift to register.
const shiftThreshold = 2

// Theme is one recurring tag and how often it appears.
type Theme struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// OutcomeCounts buckets recorded outcomes.
type OutcomeCounts struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Unknown int `json:"unknown"`
}

// Shift records one preference whose weight changed between the early and
// recent halves of the log.
type Shift struct {
	Preference string `json:"preference"`
	Direction  string `json:"direction"`
}

// Evolution compares preferences in the early half of the log against the
// recent half.
type Evolution struct {
	Status            string         `json:"status"`
	EarlyPreferences  map[string]int `json:"early_preferences,omitempty"`
	RecentPreferences map[string]int `json:"recent_preferences,omitempty"`
	Shifts            []Shift        `json:"shifts_detected,omitempty"`
}

// DecisionSpeed summarizes the cadence of logging.
type DecisionSpeed struct {
	TotalDecisions    int     `json:"total_decisions"`
	DecisionsPerMonth float64 `json:"decisions_per_month"`
}

// Summary is the full pattern report over a decision log.
type Summary struct {
	Preferences        map[string]int `json:"preferences"`
	RecurringThemes    []Theme        `json:"recurring_themes"`
	ConstraintPatterns map[string]int `json:"constraint_patterns"`
	OutcomePatterns    OutcomeCounts  `json:"outcome_patterns"`
	Evolution          Evolution      `json:"evolution"`
	DecisionSpeed      DecisionSpeed  `json:"decision_speed"`
}

// Analyzer computes pattern summaries from a decision log.
type Analyzer struct {
	log store.Log
}

// New creates an Analyzer over the given log.
func New(log store.Log) *Analyzer {
	return &Analyzer{log: log}
}

// Analyze reads the full timeline and computes the summary.
func (a *Analyzer) Analyze(ctx context.Context) (Summary, error) {
	records, err := a.log.Timeline(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(records), nil
}

// Summarize computes the pattern report over records. Records are expected
// in timeline order; Evolution splits on the midpoint of that order.
func Summarize(records []model.DecisionRecord) Summary {
	return Summary{
		Preferences:        extractPreferences(records),
		RecurringThemes:    recurringThemes(records),
		ConstraintPatterns: constraintPatterns(records),
		OutcomePatterns:    outcomeCounts(records),
		Evolution:          trackEvolution(records),
		DecisionSpeed: DecisionSpeed{
			TotalDecisions:    len(records),
			DecisionsPerMonth: decisionRate(records),
		},
	}
}

func extractPreferences(records []model.DecisionRecord) map[string]int {
	prefs := map[string]int{}
	for _, rec := range records {
		reason := strings.ToLower(rec.Reason)
		for category, keywords := range preferenceKeywords {
			for _, kw := range keywords {
				if strings.Contains(reason, kw) {
					prefs[category]++
					break
				}
			}
		}
	}
	return prefs
}

// recurringThemes counts tags and returns the top ten, ties broken by
// first appearance in the log.
func recurringThemes(records []model.DecisionRecord) []Theme {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	order := 0
	for _, rec := range records {
		for _, tag := range rec.Tags {
			if _, ok := counts[tag]; !ok {
				firstSeen[tag] = order
				order++
			}
			counts[tag]++
		}
	}

	themes := make([]Theme, 0, len(counts))
	for tag, n := range counts {
		themes = append(themes, Theme{Tag: tag, Count: n})
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Count != themes[j].Count {
			return themes[i].Count > themes[j].Count
		}
		return firstSeen[themes[i].Tag] < firstSeen[themes[j].Tag]
	})
	if len(themes) > maxThemes {
		themes = themes[:maxThemes]
	}
	return themes
}

func constraintPatterns(records []model.DecisionRecord) map[string]int {
	counts := map[string]int{}
	for _, rec := range records {
		for key := range rec.Constraints {
			counts[key]++
		}
	}
	return counts
}

func outcomeCounts(records []model.DecisionRecord) OutcomeCounts {
	var out OutcomeCounts
	for _, rec := range records {
		switch outcome := strings.ToLower(rec.Outcome); {
		case successOutcomes[outcome]:
			out.Success++
		case failureOutcomes[outcome]:
			out.Failure++
		default:
			out.Unknown++
		}
	}
	return out
}

// trackEvolution splits the log in half and reports preference shifts
// larger than the threshold. Fewer than two records cannot show a trend.
func trackEvolution(records []model.DecisionRecord) Evolution {
	if len(records) < 2 {
		return Evolution{Status: "insufficient_data"}
	}

	mid := len(records) / 2
	early := extractPreferences(records[:mid])
	recent := extractPreferences(records[mid:])

	keys := map[string]bool{}
	for k := range early {
		keys[k] = true
	}
	for k := range recent {
		keys[k] = true
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var shifts []Shift
	for _, key := range sorted {
		diff := recent[key] - early[key]
		if diff > shiftThreshold {
			shifts = append(shifts, Shift{Preference: key, Direction: "increasing"})
		} else if -diff > shiftThreshold {
			shifts = append(shifts, Shift{Preference: key, Direction: "decreasing"})
		}
	}

	return Evolution{
		Status:            "ok",
		EarlyPreferences:  early,
		RecentPreferences: recent,
		Shifts:            shifts,
	}
}

// decisionRate is decisions per 30-day month across the span of the log.
// A log spanning less than a day reports its raw count.
func decisionRate(records []model.DecisionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	first := records[0].Timestamp
	last := records[len(records)-1].Timestamp
	days := int(last.Sub(first) / (24 * time.Hour))
	if days == 0 {
		return float64(len(records))
	}
	return float64(len(records)) / (float64(days) / 30)
}
