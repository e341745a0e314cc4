// Package twin provides the shared business logic of the digital twin.
//
// Both the HTTP API and MCP server delegate to this service, eliminating
// duplicated logic and ensuring consistent behavior (intervention checks,
// regret scoring, pattern analysis) across all interfaces.
package twin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kagami-ai/kagami/internal/bias"
	"github.com/kagami-ai/kagami/internal/intervene"
	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/patterns"
	"github.com/kagami-ai/kagami/internal/regret"
	"github.com/kagami-ai/kagami/internal/state"
	"github.com/kagami-ai/kagami/internal/store"
	"github.com/kagami-ai/kagami/internal/telemetry"
)

// Service encapsulates twin business logic shared by HTTP and MCP handlers.
type Service struct {
	log      store.Log
	analyzer *patterns.Analyzer
	regret   *regret.Engine
	guard    *intervene.Engine
	detector *bias.Detector
	monitor  *state.Monitor
	logger   *slog.Logger
	hooks    []DecisionHook

	checkDuration   metric.Float64Histogram
	predictDuration metric.Float64Histogram
}

// New creates a twin Service wiring the engines over a shared log.
// monitor may be nil when activity tracking is not wanted; state-dependent
// operations then fall back to caller-supplied context only.
func New(log store.Log, monitor *state.Monitor, logger *slog.Logger, opts ...Option) *Service {
	meter := telemetry.Meter("kagami/twin")
	checkDur, _ := meter.Float64Histogram("kagami.check.duration",
		metric.WithDescription("Time to run an intervention check (ms)"),
		metric.WithUnit("ms"),
	)
	predictDur, _ := meter.Float64Histogram("kagami.predict.duration",
		metric.WithDescription("Time to run a regret prediction (ms)"),
		metric.WithUnit("ms"),
	)

	s := &Service{
		log:             log,
		analyzer:        patterns.New(log),
		regret:          regret.New(log),
		guard:           intervene.New(log, logger),
		detector:        bias.New(log),
		monitor:         monitor,
		logger:          logger,
		checkDuration:   checkDur,
		predictDuration: predictDur,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option overrides a Service collaborator.
type Option func(*Service)

// WithRegretEngine replaces the regret engine. Used in tests to pin clocks.
func WithRegretEngine(e *regret.Engine) Option {
	return func(s *Service) { s.regret = e }
}

// WithInterventionEngine replaces the intervention engine.
func WithInterventionEngine(e *intervene.Engine) Option {
	return func(s *Service) { s.guard = e }
}

// DecisionHook receives decision lifecycle notifications. Hooks run
// asynchronously after the record is stored and must not block for long;
// each invocation gets a bounded context.
type DecisionHook interface {
	OnDecisionLogged(ctx context.Context, rec model.DecisionRecord, check intervene.Result) error
}

// WithDecisionHooks registers hooks to be notified after each logged decision.
func WithDecisionHooks(hooks ...DecisionHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, hooks...) }
}

// LogResult pairs the stored record with any warnings raised at log time.
type LogResult struct {
	Record model.DecisionRecord `json:"record"`
	Check  intervene.Result     `json:"check"`
}

// Log validates and stores a decision, running an intervention check on
// the way in. The check never blocks the write: the decision is recorded
// even when warnings fire, and the warnings ride along in the result.
func (s *Service) Log(ctx context.Context, in model.DecisionInput, cc model.CheckContext) (LogResult, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("kagami.decision_len", len(in.Decision)))

	if err := model.ValidateDecisionInput(in); err != nil {
		return LogResult{}, fmt.Errorf("twin: %w", err)
	}

	check, err := s.CheckDecision(ctx, in.Decision, cc)
	if err != nil {
		// A broken check is logged, not fatal: losing a warning beats
		// losing the record.
		s.logger.Warn("twin: intervention check failed", "error", err)
		check = intervene.Result{AllowOverride: true}
	}

	rec, err := s.log.Add(ctx, in)
	if err != nil {
		return LogResult{}, fmt.Errorf("twin: log decision: %w", err)
	}

	s.logger.Info("twin: decision logged",
		"id", rec.ID,
		"tags", rec.Tags,
		"warnings", len(check.AllWarnings),
	)

	if len(s.hooks) > 0 {
		hooks := s.hooks
		logger := s.logger
		go func() {
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, h := range hooks {
				if err := h.OnDecisionLogged(hookCtx, rec, check); err != nil {
					logger.Warn("twin: decision hook failed", "error", err)
				}
			}
		}()
	}

	return LogResult{Record: rec, Check: check}, nil
}

// UpdateOutcome records how a past decision turned out.
func (s *Service) UpdateOutcome(ctx context.Context, id, outcome string) (model.DecisionRecord, error) {
	rec, err := s.log.UpdateOutcome(ctx, id, outcome)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	s.logger.Info("twin: outcome recorded", "id", id, "outcome", outcome)
	return rec, nil
}

// Recent returns the n most recent decisions.
func (s *Service) Recent(ctx context.Context, n int) ([]model.DecisionRecord, error) {
	return s.log.Recent(ctx, n)
}

// ByTag returns decisions carrying the tag.
func (s *Service) ByTag(ctx context.Context, tag string) ([]model.DecisionRecord, error) {
	return s.log.ByTag(ctx, tag)
}

// Timeline returns the full decision history, oldest first.
func (s *Service) Timeline(ctx context.Context) ([]model.DecisionRecord, error) {
	return s.log.Timeline(ctx)
}

// FindSimilar returns past decisions lexically similar to text.
func (s *Service) FindSimilar(ctx context.Context, text string) ([]store.Match, error) {
	return s.log.FindSimilar(ctx, text)
}

// CheckDecision runs the intervention rules over a candidate decision.
// The live monitor's scores fill any context fields the caller left zero.
func (s *Service) CheckDecision(ctx context.Context, decision string, cc model.CheckContext) (intervene.Result, error) {
	start := time.Now()
	defer func() {
		s.checkDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	cc = s.mergeMonitorContext(cc)
	return s.guard.Check(ctx, decision, cc)
}

// PredictRegret scores the regret risk of a candidate decision.
func (s *Service) PredictRegret(ctx context.Context, decision string, cc model.CheckContext) (regret.Prediction, error) {
	start := time.Now()
	defer func() {
		s.predictDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	cc = s.mergeMonitorContext(cc)
	return s.regret.Predict(ctx, decision, cc)
}

// Patterns returns the pattern summary over the full log.
func (s *Service) Patterns(ctx context.Context) (patterns.Summary, error) {
	return s.analyzer.Analyze(ctx)
}

// Biases returns the detected cognitive biases.
func (s *Service) Biases(ctx context.Context) ([]bias.Finding, error) {
	return s.detector.Detect(ctx)
}

// State returns the live cognitive state snapshot.
func (s *Service) State() (state.Snapshot, error) {
	if s.monitor == nil {
		return state.Snapshot{}, fmt.Errorf("twin: state monitor not configured")
	}
	return s.monitor.Current(), nil
}

// LogActivity feeds one activity event into the state monitor.
func (s *Service) LogActivity(activityType string, duration int) error {
	if s.monitor == nil {
		return fmt.Errorf("twin: state monitor not configured")
	}
	s.monitor.LogActivity(activityType, duration)
	return nil
}

// TakeBreak records a break in the state monitor.
func (s *Service) TakeBreak() error {
	if s.monitor == nil {
		return fmt.Errorf("twin: state monitor not configured")
	}
	s.monitor.TakeBreak()
	return nil
}

// DailyStats returns today's focus statistics.
func (s *Service) DailyStats() (state.DailyStats, error) {
	if s.monitor == nil {
		return state.DailyStats{}, fmt.Errorf("twin: state monitor not configured")
	}
	return s.monitor.DailyStats(), nil
}

// mergeMonitorContext layers the live monitor's scores under the caller's
// explicit values. Caller-supplied non-zero fields win.
func (s *Service) mergeMonitorContext(cc model.CheckContext) model.CheckContext {
	if s.monitor == nil {
		return cc
	}
	live := s.monitor.CheckContext()
	if cc.StressLevel == 0 {
		cc.StressLevel = live.StressLevel
	}
	if cc.EnergyLevel == 0 {
		cc.EnergyLevel = live.EnergyLevel
	}
	if cc.DecisionQuality == 0 {
		cc.DecisionQuality = live.DecisionQuality
	}
	if cc.EmotionalState == "" {
		cc.EmotionalState = live.EmotionalState
	}
	return cc
}
