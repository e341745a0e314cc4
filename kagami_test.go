package kagami_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagami-ai/kagami"
	"github.com/kagami-ai/kagami/internal/intervene"
	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/testutil"
)

func newTestApp(t *testing.T) *kagami.App {
	t.Helper()

	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAGAMI_API_KEY", "")

	app, err := kagami.New(
		kagami.WithDataDir(t.TempDir()),
		kagami.WithLogger(testutil.TestLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Shutdown(context.Background())) })
	return app
}

func hasRule(warnings []intervene.Warning, name string) bool {
	for _, w := range warnings {
		if w.Rule == name {
			return true
		}
	}
	return false
}

// The wired engine honors each rule's delay window: a rule that just fired
// stays silent on an immediately repeated check.
func TestCheckHonorsDelayWindow(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	cc := model.CheckContext{
		StressLevel:    90,
		TimeThinking:   300,
		EmotionalState: "calm",
	}

	first, err := app.Service().CheckDecision(ctx, "reply to that email now", cc)
	require.NoError(t, err)
	require.True(t, hasRule(first.AllWarnings, "stress_decision"))

	second, err := app.Service().CheckDecision(ctx, "reply to that email now", cc)
	require.NoError(t, err)
	assert.False(t, hasRule(second.AllWarnings, "stress_decision"))
}

func TestNewAndShutdown(t *testing.T) {
	app := newTestApp(t)

	res, err := app.Service().Log(context.Background(), model.DecisionInput{
		Decision: "run the retro on Thursday",
	}, model.CheckContext{})
	require.NoError(t, err)
	assert.Equal(t, "dec_0", res.Record.ID)
}
