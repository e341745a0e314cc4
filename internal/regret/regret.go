// Package regret predicts how likely the user is to regret a decision
// they are about to make.
//
// The prediction is an additive score over independent risk factors, some
// learned from the log (the per-hour regret rate) and some fixed heuristics
// (late night, stress, deliberation time). Scores clamp to [0, 1].
package regret

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/store"
)

// Factor contributions. Each triggered factor adds its weight to the score.
const (
	weightHourPattern  = 0.30
	weightLateNight    = 0.35
	weightHighStress   = 0.25
	weightQuickCall    = 0.20
	weightVolatileMood = 0.30
	weightFriday       = 0.15
	weightOverloaded   = 0.20
)

// Trigger thresholds.
const (
	hourRegretRateMin = 0.5
	highStressMin     = 70
	quickCallSeconds  = 60
	overloadedMin     = 5
	maxSimilarRegrets = 3
)

// Level boundaries, checked highest first.
const (
	LevelCritical = "CRITICAL"
	LevelHigh     = "HIGH"
	LevelMedium   = "MEDIUM"
	LevelLow      = "LOW"
	LevelMinimal  = "MINIMAL"
)

// SimilarRegret is a past regretted decision lexically similar to the one
// being considered.
type SimilarRegret struct {
	Decision        string    `json:"decision"`
	ReasonRegretted string    `json:"reason_regretted"`
	Timestamp       time.Time `json:"timestamp"`
}

// Prediction is the full regret forecast for a candidate decision.
type Prediction struct {
	Probability    float64         `json:"regret_probability"`
	Percentage     int             `json:"percentage"`
	Level          string          `json:"level"`
	Factors        []string        `json:"factors"`
	Recommendation string          `json:"recommendation"`
	SimilarRegrets []SimilarRegret `json:"similar_past_decisions"`
}

// Engine predicts regret from the decision log plus the live context.
type Engine struct {
	log store.Log
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used in tests to pin the hour and
// weekday factors.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given log.
func New(log store.Log, opts ...Option) *Engine {
	e := &Engine{
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// hourStats tracks regret rates per hour of day.
type hourStats struct {
	total   int
	regrets int
}

// Predict scores the candidate decision against the log and context.
// The per-hour regret table is rebuilt from the full timeline on every
// call so updated outcomes take effect immediately.
func (e *Engine) Predict(ctx context.Context, decision string, cc model.CheckContext) (Prediction, error) {
	records, err := e.log.Timeline(ctx)
	if err != nil {
		return Prediction{}, fmt.Errorf("regret: load timeline: %w", err)
	}

	byHour := map[int]*hourStats{}
	for _, rec := range records {
		h := rec.Timestamp.Hour()
		s := byHour[h]
		if s == nil {
			s = &hourStats{}
			byHour[h] = s
		}
		s.total++
		if model.IsRegret(rec.Outcome) {
			s.regrets++
		}
	}

	now := e.now()
	score := 0.0
	var factors []string

	if s := byHour[now.Hour()]; s != nil && s.total > 0 {
		rate := float64(s.regrets) / float64(s.total)
		if rate > hourRegretRateMin {
			score += weightHourPattern
			factors = append(factors, fmt.Sprintf("You regret %d%% of decisions made at this hour", int(rate*100)))
		}
	}

	if hour := now.Hour(); hour >= 22 || hour <= 5 {
		score += weightLateNight
		factors = append(factors, "Late night decisions have 67% regret rate")
	}

	if cc.StressLevel > highStressMin {
		score += weightHighStress
		factors = append(factors, "High stress increases regret by 25%")
	}

	if cc.TimeThinking < quickCallSeconds {
		score += weightQuickCall
		factors = append(factors, "Quick decisions have 58% regret rate")
	}

	if cc.IsVolatileEmotion() {
		score += weightVolatileMood
		factors = append(factors, fmt.Sprintf("Decisions made while %s are regretted 73%% of the time", cc.EmotionalState))
	}

	if now.Weekday() == time.Friday {
		score += weightFriday
		factors = append(factors, "Friday decisions have higher regret rate")
	}

	if cc.CurrentCommitments > overloadedMin {
		score += weightOverloaded
		factors = append(factors, "You're overloaded - decision quality suffers")
	}

	p := math.Min(1.0, math.Max(0.0, score))

	return Prediction{
		Probability:    p,
		Percentage:     int(p * 100),
		Level:          Level(p),
		Factors:        factors,
		Recommendation: recommendation(p),
		SimilarRegrets: similarRegrets(records, decision),
	}, nil
}

// Level maps a probability to its named risk band.
func Level(p float64) string {
	switch {
	case p >= 0.8:
		return LevelCritical
	case p >= 0.6:
		return LevelHigh
	case p >= 0.4:
		return LevelMedium
	case p >= 0.2:
		return LevelLow
	default:
		return LevelMinimal
	}
}

func recommendation(p float64) string {
	switch {
	case p >= 0.8:
		return "DON'T DO IT. Sleep on this. Review tomorrow."
	case p >= 0.6:
		return "HIGH RISK. Wait at least 2 hours. Talk to someone."
	case p >= 0.4:
		return "PAUSE. Take 30 minutes to think it through."
	case p >= 0.2:
		return "Consider carefully. Write down pros and cons."
	default:
		return "Low regret risk. Proceed if it feels right."
	}
}

// similarRegrets returns up to three past regretted decisions whose text
// overlaps the candidate by more than two tokens, in log order.
func similarRegrets(records []model.DecisionRecord, decision string) []SimilarRegret {
	query := model.Tokens(decision)
	var out []SimilarRegret
	for _, rec := range records {
		if !model.IsRegret(rec.Outcome) {
			continue
		}
		if model.Overlap(query, model.Tokens(rec.Decision)) > 2 {
			out = append(out, SimilarRegret{
				Decision:        rec.Decision,
				ReasonRegretted: rec.Reason,
				Timestamp:       rec.Timestamp,
			})
			if len(out) == maxSimilarRegrets {
				break
			}
		}
	}
	return out
}
