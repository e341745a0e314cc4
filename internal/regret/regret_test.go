package regret_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/regret"
	"github.com/kagami-ai/kagami/internal/store"
)

// fixedClock pins the engine's notion of now.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func emptyLog(t *testing.T) *store.Memory {
	t.Helper()
	m, err := store.NewMemory(context.Background(), nil)
	require.NoError(t, err)
	return m
}

// Tuesday 14:00: no time-based factors trigger.
var calmAfternoon = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

// safeContext triggers nothing on its own.
var safeContext = model.CheckContext{
	TimeThinking:   300,
	EmotionalState: "calm",
}

func TestPredictWorstCase(t *testing.T) {
	// Friday 23:30, stressed, frustrated, snap decision, overloaded.
	// Every static factor fires and the score clamps to 1.0.
	lateFriday := time.Date(2026, 3, 13, 23, 30, 0, 0, time.UTC)
	require.Equal(t, time.Friday, lateFriday.Weekday())

	e := regret.New(emptyLog(t), regret.WithClock(fixedClock(lateFriday)))
	p, err := e.Predict(context.Background(), "quit my job tonight", model.CheckContext{
		StressLevel:        75,
		TimeThinking:       20,
		EmotionalState:     "frustrated",
		CurrentCommitments: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Probability)
	assert.Equal(t, 100, p.Percentage)
	assert.Equal(t, regret.LevelCritical, p.Level)
	assert.Len(t, p.Factors, 5)
	assert.Contains(t, p.Recommendation, "Sleep on this")
}

func TestPredictCalmBaseline(t *testing.T) {
	e := regret.New(emptyLog(t), regret.WithClock(fixedClock(calmAfternoon)))
	p, err := e.Predict(context.Background(), "switch coffee brands", safeContext)
	require.NoError(t, err)

	assert.Equal(t, 0.0, p.Probability)
	assert.Equal(t, regret.LevelMinimal, p.Level)
	assert.Empty(t, p.Factors)
	assert.Empty(t, p.SimilarRegrets)
}

func TestPredictSingleFactors(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		cc        model.CheckContext
		wantScore float64
		wantLevel string
	}{
		{
			name:      "high stress",
			now:       calmAfternoon,
			cc:        model.CheckContext{StressLevel: 80, TimeThinking: 300},
			wantScore: 0.25,
			wantLevel: regret.LevelLow,
		},
		{
			name:      "quick decision",
			now:       calmAfternoon,
			cc:        model.CheckContext{TimeThinking: 10},
			wantScore: 0.20,
			wantLevel: regret.LevelLow,
		},
		{
			name:      "volatile emotion",
			now:       calmAfternoon,
			cc:        model.CheckContext{TimeThinking: 300, EmotionalState: "angry"},
			wantScore: 0.30,
			wantLevel: regret.LevelLow,
		},
		{
			name: "late night",
			// Tuesday 23:00.
			now:       time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC),
			cc:        model.CheckContext{TimeThinking: 300},
			wantScore: 0.35,
			wantLevel: regret.LevelLow,
		},
		{
			name:      "early morning counts as late night",
			now:       time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC),
			cc:        model.CheckContext{TimeThinking: 300},
			wantScore: 0.35,
			wantLevel: regret.LevelLow,
		},
		{
			name:      "friday",
			now:       time.Date(2026, 3, 13, 14, 0, 0, 0, time.UTC),
			cc:        model.CheckContext{TimeThinking: 300},
			wantScore: 0.15,
			wantLevel: regret.LevelMinimal,
		},
		{
			name:      "overloaded",
			now:       calmAfternoon,
			cc:        model.CheckContext{TimeThinking: 300, CurrentCommitments: 6},
			wantScore: 0.20,
			wantLevel: regret.LevelLow,
		},
		{
			name:      "stress at boundary does not trigger",
			now:       calmAfternoon,
			cc:        model.CheckContext{StressLevel: 70, TimeThinking: 300},
			wantScore: 0,
			wantLevel: regret.LevelMinimal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := regret.New(emptyLog(t), regret.WithClock(fixedClock(tt.now)))
			p, err := e.Predict(context.Background(), "some decision", tt.cc)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, p.Probability, 1e-9)
			assert.Equal(t, tt.wantLevel, p.Level)
		})
	}
}

func TestPredictHourPattern(t *testing.T) {
	ctx := context.Background()
	// Seed two decisions at 14:00, both regretted. The hour regret rate is
	// 1.0 > 0.5, so the hour factor fires on a 14:00 prediction.
	seed := time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC)
	clock := seed
	m, err := store.NewMemory(ctx, nil, store.WithClock(func() time.Time {
		out := clock
		clock = clock.Add(time.Minute)
		return out
	}))
	require.NoError(t, err)

	for _, d := range []string{"impulse purchase", "another impulse purchase"} {
		rec, err := m.Add(ctx, model.DecisionInput{Decision: d})
		require.NoError(t, err)
		_, err = m.UpdateOutcome(ctx, rec.ID, "regret")
		require.NoError(t, err)
	}

	e := regret.New(m, regret.WithClock(fixedClock(calmAfternoon)))
	p, err := e.Predict(ctx, "unrelated thing", safeContext)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, p.Probability, 1e-9)
	require.Len(t, p.Factors, 1)
	assert.Contains(t, p.Factors[0], "100% of decisions made at this hour")

	// A different hour sees no pattern.
	e = regret.New(m, regret.WithClock(fixedClock(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))))
	p, err = e.Predict(ctx, "unrelated thing", safeContext)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Probability)
}

func TestPredictHourPatternSeesNewOutcomes(t *testing.T) {
	ctx := context.Background()
	m, err := store.NewMemory(ctx, nil, store.WithClock(fixedClock(calmAfternoon)))
	require.NoError(t, err)

	rec, err := m.Add(ctx, model.DecisionInput{Decision: "something at two pm"})
	require.NoError(t, err)

	e := regret.New(m, regret.WithClock(fixedClock(calmAfternoon)))
	p, err := e.Predict(ctx, "another thing", safeContext)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Probability, "no recorded regrets yet")

	// Recording the regret changes the very next prediction.
	_, err = m.UpdateOutcome(ctx, rec.ID, "regret")
	require.NoError(t, err)

	p, err = e.Predict(ctx, "another thing", safeContext)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, p.Probability, 1e-9)
}

func TestPredictSimilarRegrets(t *testing.T) {
	ctx := context.Background()
	m, err := store.NewMemory(ctx, nil)
	require.NoError(t, err)

	regretted := []string{
		"buy the expensive standing desk",
		"buy the expensive mechanical keyboard",
		"buy the expensive office chair",
		"buy the expensive monitor arm",
	}
	for _, d := range regretted {
		rec, err := m.Add(ctx, model.DecisionInput{Decision: d, Reason: "wanted it"})
		require.NoError(t, err)
		_, err = m.UpdateOutcome(ctx, rec.ID, "regret")
		require.NoError(t, err)
	}
	// A similar success does not appear.
	_, err = m.Add(ctx, model.DecisionInput{Decision: "buy the expensive laptop", Outcome: "success"})
	require.NoError(t, err)

	e := regret.New(m, regret.WithClock(fixedClock(calmAfternoon)))
	p, err := e.Predict(ctx, "buy the expensive espresso machine", safeContext)
	require.NoError(t, err)

	// Capped at three, earliest first.
	require.Len(t, p.SimilarRegrets, 3)
	assert.Equal(t, "buy the expensive standing desk", p.SimilarRegrets[0].Decision)
	assert.Equal(t, "wanted it", p.SimilarRegrets[0].ReasonRegretted)
}

func TestLevelBands(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0.0, regret.LevelMinimal},
		{0.19, regret.LevelMinimal},
		{0.2, regret.LevelLow},
		{0.4, regret.LevelMedium},
		{0.6, regret.LevelHigh},
		{0.79, regret.LevelHigh},
		{0.8, regret.LevelCritical},
		{1.0, regret.LevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, regret.Level(tt.p), "p=%v", tt.p)
	}
}
