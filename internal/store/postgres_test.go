package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/store"
	"github.com/kagami-ai/kagami/internal/testutil"
)

// testPG holds a shared Postgres store for all integration tests in this package.
var testPG *store.Postgres

func TestMain(m *testing.M) {
	if os.Getenv("KAGAMI_TEST_POSTGRES") == "" {
		// Unit tests only; skip the container.
		os.Exit(m.Run())
	}

	tc := testutil.MustStartPostgres()

	var err error
	testPG, err = store.NewPostgres(context.Background(), tc.DSN, testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}

	code := m.Run()

	testPG.Close()
	tc.Terminate()
	os.Exit(code)
}

func requirePostgres(t *testing.T) *store.Postgres {
	t.Helper()
	if testPG == nil {
		t.Skip("set KAGAMI_TEST_POSTGRES=1 to run Postgres integration tests")
	}
	return testPG
}

func resetDecisions(t *testing.T, pg *store.Postgres) {
	t.Helper()
	_, err := pg.Pool().Exec(context.Background(), "TRUNCATE decisions RESTART IDENTITY")
	require.NoError(t, err)
}

func TestPostgresAddAndCount(t *testing.T) {
	pg := requirePostgres(t)
	resetDecisions(t, pg)
	ctx := context.Background()

	first, err := pg.Add(ctx, model.DecisionInput{
		Decision:    "migrate the log to postgres",
		Reason:      "shared access from two machines",
		Constraints: map[string]string{"budget": "none"},
		Tags:        []string{"infra"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dec_0", first.ID)
	assert.Equal(t, 0, first.Snapshot.DecisionCount)

	second, err := pg.Add(ctx, model.DecisionInput{Decision: "keep the json file as backup"})
	require.NoError(t, err)
	assert.Equal(t, "dec_1", second.ID)

	n, err := pg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostgresUpdateOutcome(t *testing.T) {
	pg := requirePostgres(t)
	resetDecisions(t, pg)
	ctx := context.Background()

	rec, err := pg.Add(ctx, model.DecisionInput{Decision: "ship the refactor on friday"})
	require.NoError(t, err)

	updated, err := pg.UpdateOutcome(ctx, rec.ID, model.OutcomeRegret)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRegret, updated.Outcome)
	require.NotNil(t, updated.OutcomeTimestamp)

	_, err = pg.UpdateOutcome(ctx, "dec_999", model.OutcomeSuccess)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPostgresQueries(t *testing.T) {
	pg := requirePostgres(t)
	resetDecisions(t, pg)
	ctx := context.Background()

	for _, in := range []model.DecisionInput{
		{Decision: "rewrite the billing service", Tags: []string{"work"}},
		{Decision: "book a vacation", Tags: []string{"personal"}},
		{Decision: "rewrite the billing dashboard", Tags: []string{"work"}},
	} {
		_, err := pg.Add(ctx, in)
		require.NoError(t, err)
	}

	recent, err := pg.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "rewrite the billing dashboard", recent[0].Decision)

	timeline, err := pg.Timeline(ctx)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.Equal(t, "dec_0", timeline[0].ID)

	work, err := pg.ByTag(ctx, "work")
	require.NoError(t, err)
	require.Len(t, work, 2)
	assert.Equal(t, "dec_0", work[0].ID)

	matches, err := pg.FindSimilar(ctx, "rewrite the billing pipeline")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 3, matches[0].Overlap)
}
