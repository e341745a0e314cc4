package intervene_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagami-ai/kagami/internal/intervene"
	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/store"
	"github.com/kagami-ai/kagami/internal/testutil"
)

// Tuesday 14:00: no time-based rules trigger.
var calmAfternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

// safeContext triggers nothing on its own.
var safeContext = model.CheckContext{
	TimeThinking:   300,
	EmotionalState: "calm",
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newEngine(t *testing.T, log store.Log, opts ...intervene.Option) *intervene.Engine {
	t.Helper()
	if log == nil {
		m, err := store.NewMemory(context.Background(), nil)
		require.NoError(t, err)
		log = m
	}
	opts = append([]intervene.Option{intervene.WithClock(fixedClock(calmAfternoon))}, opts...)
	return intervene.New(log, testutil.TestLogger(), opts...)
}

func TestCheckNoWarnings(t *testing.T) {
	e := newEngine(t, nil)
	res, err := e.Check(context.Background(), "water the plants", safeContext)
	require.NoError(t, err)

	assert.False(t, res.ShouldIntervene)
	assert.True(t, res.AllowOverride)
	assert.Nil(t, res.Intervention)
	assert.Contains(t, res.Message, "Proceed")
}

func TestCheckStressOnly(t *testing.T) {
	e := newEngine(t, nil)
	cc := safeContext
	cc.StressLevel = 85

	res, err := e.Check(context.Background(), "reply to that email now", cc)
	require.NoError(t, err)

	assert.True(t, res.ShouldIntervene)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "stress_decision", res.Intervention.Rule)
	assert.Equal(t, intervene.SeverityHigh, res.Intervention.Severity)
	assert.True(t, res.AllowOverride, "high severity can be overridden")
	assert.Len(t, res.AllWarnings, 1)
}

func TestCheckCriticalDeniesOverride(t *testing.T) {
	e := newEngine(t, nil)
	cc := safeContext
	cc.EmotionalState = "angry"

	res, err := e.Check(context.Background(), "send the resignation letter", cc)
	require.NoError(t, err)

	assert.True(t, res.ShouldIntervene)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "emotional_state", res.Intervention.Rule)
	assert.False(t, res.AllowOverride)
}

func TestCheckPrimarySelection(t *testing.T) {
	// Stress (high) plus impulsive (medium): the high wins even though
	// impulsive appears first by context field order.
	e := newEngine(t, nil)
	cc := model.CheckContext{StressLevel: 90, TimeThinking: 5}

	res, err := e.Check(context.Background(), "approve the contract", cc)
	require.NoError(t, err)

	require.NotNil(t, res.Intervention)
	assert.Equal(t, "stress_decision", res.Intervention.Rule)
	assert.Len(t, res.AllWarnings, 2)

	// Adding anger: critical beats everything.
	cc.EmotionalState = "angry"
	res, err = e.Check(context.Background(), "approve the contract", cc)
	require.NoError(t, err)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "emotional_state", res.Intervention.Rule)
	assert.False(t, res.AllowOverride)
	assert.Len(t, res.AllWarnings, 3)
}

func TestCheckLateNight(t *testing.T) {
	lateNight := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	e := newEngine(t, nil, intervene.WithClock(fixedClock(lateNight)))

	res, err := e.Check(context.Background(), "refactor everything", safeContext)
	require.NoError(t, err)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "late_night_decision", res.Intervention.Rule)
}

func TestCheckRepeatedMistake(t *testing.T) {
	ctx := context.Background()
	m, err := store.NewMemory(ctx, nil)
	require.NoError(t, err)

	// Two regretted near-identical decisions make a repeat.
	for _, d := range []string{"merge the giant pr without review", "merge the giant pr without tests"} {
		rec, err := m.Add(ctx, model.DecisionInput{Decision: d})
		require.NoError(t, err)
		_, err = m.UpdateOutcome(ctx, rec.ID, "failure")
		require.NoError(t, err)
	}

	e := newEngine(t, m)
	res, err := e.Check(ctx, "merge the giant pr without approval", safeContext)
	require.NoError(t, err)

	assert.True(t, res.ShouldIntervene)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "repeated_mistake", res.Intervention.Rule)
	assert.False(t, res.AllowOverride)
}

func TestCheckRepeatedMistakeNeedsTwoFailures(t *testing.T) {
	ctx := context.Background()
	m, err := store.NewMemory(ctx, nil)
	require.NoError(t, err)

	rec, err := m.Add(ctx, model.DecisionInput{Decision: "merge the giant pr without review"})
	require.NoError(t, err)
	_, err = m.UpdateOutcome(ctx, rec.ID, "failure")
	require.NoError(t, err)
	// A similar success does not count toward the repeat.
	_, err = m.Add(ctx, model.DecisionInput{Decision: "merge the giant pr without delay", Outcome: "success"})
	require.NoError(t, err)

	e := newEngine(t, m)
	res, err := e.Check(ctx, "merge the giant pr without approval", safeContext)
	require.NoError(t, err)
	assert.False(t, res.ShouldIntervene)
}

func TestCheckFridayCommitment(t *testing.T) {
	friday := time.Date(2026, 3, 13, 14, 0, 0, 0, time.UTC)
	require.Equal(t, time.Friday, friday.Weekday())
	e := newEngine(t, nil, intervene.WithClock(fixedClock(friday)))

	cc := safeContext
	cc.DecisionType = "commitment"
	res, err := e.Check(context.Background(), "promise the feature by monday", cc)
	require.NoError(t, err)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "friday_commitment", res.Intervention.Rule)

	// Same context on a Tuesday stays quiet.
	e = newEngine(t, nil)
	res, err = e.Check(context.Background(), "promise the feature by monday", cc)
	require.NoError(t, err)
	assert.False(t, res.ShouldIntervene)
}

func TestCheckPostMeeting(t *testing.T) {
	e := newEngine(t, nil)

	cc := safeContext
	minutes := 10.0
	cc.MinutesSinceMeeting = &minutes
	res, err := e.Check(context.Background(), "commit to the new initiative", cc)
	require.NoError(t, err)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "post_meeting_decision", res.Intervention.Rule)

	// Unknown meeting time never triggers.
	cc.MinutesSinceMeeting = nil
	res, err = e.Check(context.Background(), "commit to the new initiative", cc)
	require.NoError(t, err)
	assert.False(t, res.ShouldIntervene)
}

func TestCheckCooldownSuppressesRepeats(t *testing.T) {
	cd := intervene.NewCooldown()
	defer cd.Close()

	e := newEngine(t, nil, intervene.WithCooldown(cd))
	cc := safeContext
	cc.StressLevel = 90

	res, err := e.Check(context.Background(), "same decision", cc)
	require.NoError(t, err)
	assert.True(t, res.ShouldIntervene)

	// Within the window the rule stays silent.
	res, err = e.Check(context.Background(), "same decision", cc)
	require.NoError(t, err)
	assert.False(t, res.ShouldIntervene)
}

func TestCooldownWindowExpires(t *testing.T) {
	cd := intervene.NewCooldown()
	defer cd.Close()

	base := calmAfternoon
	assert.True(t, cd.Allow("stress_decision", base, 5*time.Minute))
	assert.False(t, cd.Allow("stress_decision", base.Add(time.Minute), 5*time.Minute))
	assert.True(t, cd.Allow("stress_decision", base.Add(6*time.Minute), 5*time.Minute))

	// Rules cool down independently.
	assert.True(t, cd.Allow("late_night_decision", base, 5*time.Minute))
}

// failingLog errors on every operation.
type failingLog struct{}

func (failingLog) Add(context.Context, model.DecisionInput) (model.DecisionRecord, error) {
	return model.DecisionRecord{}, errDown
}

func (failingLog) UpdateOutcome(context.Context, string, string) (model.DecisionRecord, error) {
	return model.DecisionRecord{}, errDown
}

func (failingLog) Recent(context.Context, int) ([]model.DecisionRecord, error) { return nil, errDown }
func (failingLog) ByTag(context.Context, string) ([]model.DecisionRecord, error) {
	return nil, errDown
}
func (failingLog) Timeline(context.Context) ([]model.DecisionRecord, error) { return nil, errDown }
func (failingLog) FindSimilar(context.Context, string) ([]store.Match, error) {
	return nil, errDown
}
func (failingLog) Count(context.Context) (int, error) { return 0, errDown }

var errDown = errors.New("log unavailable")

func TestCheckRuleErrorIsolated(t *testing.T) {
	// repeated_mistake cannot read the timeline, but the other rules must
	// still run and Check must not fail.
	e := newEngine(t, failingLog{})
	cc := safeContext
	cc.StressLevel = 90

	res, err := e.Check(context.Background(), "same decision as last time", cc)
	require.NoError(t, err)

	assert.True(t, res.ShouldIntervene)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "stress_decision", res.Intervention.Rule)
	assert.Len(t, res.AllWarnings, 1)
}

func TestCheckRulePanicIsolated(t *testing.T) {
	rules := []intervene.Rule{
		{
			Name:     "broken",
			Severity: intervene.SeverityCritical,
			Message:  "never reached",
			Evaluate: func(context.Context, intervene.EvalContext) (bool, error) {
				panic("rule blew up")
			},
		},
		{
			Name:     "steady",
			Severity: intervene.SeverityMedium,
			Message:  "still standing",
			Evaluate: func(context.Context, intervene.EvalContext) (bool, error) {
				return true, nil
			},
		},
	}

	e := newEngine(t, nil, intervene.WithRules(rules...))
	res, err := e.Check(context.Background(), "any decision", safeContext)
	require.NoError(t, err)

	assert.True(t, res.ShouldIntervene)
	require.NotNil(t, res.Intervention)
	assert.Equal(t, "steady", res.Intervention.Rule)
	assert.Len(t, res.AllWarnings, 1)
}
