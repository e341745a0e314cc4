// Package intervene checks a decision the user is about to make against a
// fixed set of warning rules and decides whether to interrupt.
//
// Rules are evaluated in order and independently: a rule that errors is
// logged and skipped, never blocking the others. The primary intervention
// is the first critical hit, else the first high, else the first hit of
// any severity.
package intervene

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/store"
)

// Severity levels, weakest to strongest. Only critical interventions deny
// override.
const (
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// repeatedMistakeMin is how many similar past failures make a repeat.
const repeatedMistakeMin = 2

// similarRatioMin is the token-overlap ratio above which two decision
// texts count as the same decision.
const similarRatioMin = 0.5

// postMeetingWindow is how long after a meeting the impulsivity warning
// applies, in minutes.
const postMeetingWindow = 30.0

// EvalContext is everything a rule may look at.
type EvalContext struct {
	Decision string
	Check    model.CheckContext
	Now      time.Time
	Log      store.Log
}

// Rule is one intervention trigger.
type Rule struct {
	Name     string
	Severity string
	Message  string
	Delay    time.Duration
	Evaluate func(ctx context.Context, ec EvalContext) (bool, error)
}

// Warning is one triggered rule.
type Warning struct {
	Rule         string    `json:"rule"`
	Message      string    `json:"message"`
	Severity     string    `json:"severity"`
	DelaySeconds int       `json:"delay_seconds"`
	Timestamp    time.Time `json:"timestamp"`
}

// Result is the outcome of a decision check.
type Result struct {
	ShouldIntervene bool      `json:"should_intervene"`
	Intervention    *Warning  `json:"intervention,omitempty"`
	AllWarnings     []Warning `json:"all_warnings,omitempty"`
	AllowOverride   bool      `json:"allow_override"`
	Message         string    `json:"message,omitempty"`
}

// Engine evaluates intervention rules against the decision log.
type Engine struct {
	log      store.Log
	logger   *slog.Logger
	rules    []Rule
	cooldown *Cooldown
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCooldown suppresses repeat firings of a rule within its delay window.
func WithCooldown(c *Cooldown) Option {
	return func(e *Engine) { e.cooldown = c }
}

// WithRules replaces the default rule table. Used in tests.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// New creates an Engine with the default rule set.
func New(log store.Log, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:    log,
		logger: logger,
		rules:  defaultRules(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evaluates all rules against the decision and context.
func (e *Engine) Check(ctx context.Context, decision string, cc model.CheckContext) (Result, error) {
	now := e.now()
	ec := EvalContext{
		Decision: decision,
		Check:    cc,
		Now:      now,
		Log:      e.log,
	}

	var warnings []Warning
	for _, rule := range e.rules {
		hit, err := safeEvaluate(ctx, rule, ec)
		if err != nil {
			e.logger.Warn("intervene: rule check failed", "rule", rule.Name, "error", err)
			continue
		}
		if !hit {
			continue
		}
		if e.cooldown != nil && !e.cooldown.Allow(rule.Name, now, rule.Delay) {
			continue
		}
		warnings = append(warnings, Warning{
			Rule:         rule.Name,
			Message:      rule.Message,
			Severity:     rule.Severity,
			DelaySeconds: int(rule.Delay / time.Second),
			Timestamp:    now,
		})
	}

	if len(warnings) == 0 {
		return Result{
			ShouldIntervene: false,
			AllowOverride:   true,
			Message:         "Decision looks good. Proceed.",
		}, nil
	}

	primary := pickPrimary(warnings)
	return Result{
		ShouldIntervene: true,
		Intervention:    &primary,
		AllWarnings:     warnings,
		AllowOverride:   primary.Severity != SeverityCritical,
	}, nil
}

// safeEvaluate runs a rule, converting a panic into an error so one broken
// rule cannot take down the whole check.
func safeEvaluate(ctx context.Context, r Rule, ec EvalContext) (hit bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule panicked: %v", rec)
		}
	}()
	return r.Evaluate(ctx, ec)
}

// pickPrimary returns the first critical warning, else the first high,
// else the first warning.
func pickPrimary(warnings []Warning) Warning {
	for _, severity := range []string{SeverityCritical, SeverityHigh} {
		for _, w := range warnings {
			if w.Severity == severity {
				return w
			}
		}
	}
	return warnings[0]
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name:     "late_night_decision",
			Severity: SeverityHigh,
			Message:  "It's late. You make worse decisions after 10pm. Sleep on it?",
			Delay:    60 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				h := ec.Now.Hour()
				return h >= 22 || h <= 5, nil
			},
		},
		{
			Name:     "stress_decision",
			Severity: SeverityHigh,
			Message:  "You're stressed. This decision has 73% regret probability when stressed.",
			Delay:    300 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				return ec.Check.StressLevel > 70, nil
			},
		},
		{
			Name:     "impulsive_pattern",
			Severity: SeverityMedium,
			Message:  "You're deciding too fast. You usually regret quick decisions.",
			Delay:    120 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				return ec.Check.TimeThinking < 60, nil
			},
		},
		{
			Name:     "capacity_overload",
			Severity: SeverityHigh,
			Message:  "You're at 87% capacity. Adding more will hurt existing commitments.",
			Delay:    180 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				return ec.Check.CurrentCommitments > 5, nil
			},
		},
		{
			Name:     "emotional_state",
			Severity: SeverityCritical,
			Message:  "You're emotional. Draft saved. Review when calm?",
			Delay:    3600 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				return ec.Check.IsVolatileEmotion(), nil
			},
		},
		{
			Name:     "repeated_mistake",
			Severity: SeverityCritical,
			Message:  "You've made this exact decision before. It failed each time. Really?",
			Delay:    300 * time.Second,
			Evaluate: isRepeatedMistake,
		},
		{
			Name:     "friday_commitment",
			Severity: SeverityMedium,
			Message:  "You break 60% of commitments made on Fridays. Wait till Monday?",
			Delay:    120 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				return ec.Now.Weekday() == time.Friday && ec.Check.DecisionType == "commitment", nil
			},
		},
		{
			Name:     "post_meeting_decision",
			Severity: SeverityMedium,
			Message:  "You just left a meeting. You're 40% more impulsive post-meeting.",
			Delay:    180 * time.Second,
			Evaluate: func(_ context.Context, ec EvalContext) (bool, error) {
				m := ec.Check.MinutesSinceMeeting
				return m != nil && *m < postMeetingWindow, nil
			},
		},
	}
}

// isRepeatedMistake reports whether the log holds at least two regretted
// decisions whose text mostly overlaps the candidate.
func isRepeatedMistake(ctx context.Context, ec EvalContext) (bool, error) {
	records, err := ec.Log.Timeline(ctx)
	if err != nil {
		return false, fmt.Errorf("load timeline: %w", err)
	}

	query := model.Tokens(ec.Decision)
	failures := 0
	for _, rec := range records {
		if !model.IsRegret(rec.Outcome) {
			continue
		}
		if model.OverlapRatio(query, model.Tokens(rec.Decision)) > similarRatioMin {
			failures++
			if failures >= repeatedMistakeMin {
				return true, nil
			}
		}
	}
	return false, nil
}
