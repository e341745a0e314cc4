package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kagami-ai/kagami/internal/model"
)

// Postgres is the server-mode decision log, backed by a pgxpool.
// Ids stay "dec_N" where N is the count at insertion time; Add serializes
// inserts with a table lock so the count-derived id is race-free.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithPostgresClock overrides the timestamp source. Used in tests.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *Postgres) { p.now = now }
}

// NewPostgres connects a pool, pings it, and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger, opts ...PostgresOption) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping pool: %w", err)
	}
	p := &Postgres{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ensureSchema creates the decisions table if it does not exist. seq orders
// same-timestamp records by insertion, matching the memory store's stable
// sorts.
func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decisions (
			id             TEXT PRIMARY KEY,
			seq            BIGSERIAL,
			ts             TIMESTAMPTZ NOT NULL,
			decision       TEXT NOT NULL,
			reason         TEXT NOT NULL DEFAULT '',
			alternatives   TEXT[] NOT NULL DEFAULT '{}',
			constraints    JSONB NOT NULL DEFAULT '{}',
			outcome        TEXT NOT NULL DEFAULT '',
			outcome_ts     TIMESTAMPTZ,
			tags           TEXT[] NOT NULL DEFAULT '{}',
			snapshot_count INT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS decisions_ts_idx ON decisions (ts, seq);
		CREATE INDEX IF NOT EXISTS decisions_tags_idx ON decisions USING GIN (tags);
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

const decisionColumns = `id, ts, decision, reason, alternatives, constraints, outcome, outcome_ts, tags, snapshot_count`

// Add inserts a new record. The transaction takes an exclusive table lock
// so the count-derived id cannot collide under concurrent writers.
func (p *Postgres) Add(ctx context.Context, in model.DecisionInput) (model.DecisionRecord, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE decisions IN EXCLUSIVE MODE`); err != nil {
		return model.DecisionRecord{}, fmt.Errorf("store: lock decisions: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&count); err != nil {
		return model.DecisionRecord{}, fmt.Errorf("store: count decisions: %w", err)
	}

	now := p.now()
	rec := model.DecisionRecord{
		ID:           fmt.Sprintf("dec_%d", count),
		Timestamp:    now,
		Decision:     in.Decision,
		Reason:       in.Reason,
		Alternatives: append([]string(nil), in.Alternatives...),
		Constraints:  copyConstraints(in.Constraints),
		Outcome:      in.Outcome,
		Tags:         append([]string(nil), in.Tags...),
		Snapshot: model.Snapshot{
			Timestamp:     now,
			DecisionCount: count,
		},
	}

	constraints, err := json.Marshal(rec.Constraints)
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("store: marshal constraints: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO decisions (id, ts, decision, reason, alternatives, constraints, outcome, tags, snapshot_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Timestamp, rec.Decision, rec.Reason, rec.Alternatives,
		constraints, rec.Outcome, rec.Tags, rec.Snapshot.DecisionCount,
	)
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("store: insert decision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.DecisionRecord{}, fmt.Errorf("store: commit: %w", err)
	}
	return rec, nil
}

// UpdateOutcome sets the outcome of an existing record.
func (p *Postgres) UpdateOutcome(ctx context.Context, id, outcome string) (model.DecisionRecord, error) {
	ts := p.now()
	row := p.pool.QueryRow(ctx,
		`UPDATE decisions SET outcome = $1, outcome_ts = $2 WHERE id = $3
		 RETURNING `+decisionColumns,
		outcome, ts, id,
	)
	rec, err := scanDecision(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.DecisionRecord{}, fmt.Errorf("store: update outcome %q: %w", id, ErrNotFound)
		}
		return model.DecisionRecord{}, fmt.Errorf("store: update outcome: %w", err)
	}
	return rec, nil
}

// Recent returns the n most recently timestamped records, descending.
func (p *Postgres) Recent(ctx context.Context, n int) ([]model.DecisionRecord, error) {
	q := `SELECT ` + decisionColumns + ` FROM decisions ORDER BY ts DESC, seq DESC`
	args := []any{}
	if n >= 0 {
		q += ` LIMIT $1`
		args = append(args, n)
	}
	return p.queryDecisions(ctx, "recent", q, args...)
}

// ByTag returns records carrying tag, in insertion order.
func (p *Postgres) ByTag(ctx context.Context, tag string) ([]model.DecisionRecord, error) {
	return p.queryDecisions(ctx, "by tag",
		`SELECT `+decisionColumns+` FROM decisions WHERE $1 = ANY(tags) ORDER BY seq ASC`, tag)
}

// Timeline returns all records ascending by timestamp.
func (p *Postgres) Timeline(ctx context.Context) ([]model.DecisionRecord, error) {
	return p.queryDecisions(ctx, "timeline",
		`SELECT `+decisionColumns+` FROM decisions ORDER BY ts ASC, seq ASC`)
}

// FindSimilar fetches the full log and matches in memory. The overlap
// scoring is lexical and the log is human-scale, so there is nothing to
// gain from pushing it into SQL.
func (p *Postgres) FindSimilar(ctx context.Context, text string) ([]Match, error) {
	records, err := p.queryDecisions(ctx, "similar",
		`SELECT `+decisionColumns+` FROM decisions ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	return matchSimilar(records, text), nil
}

// Count returns the number of records.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count decisions: %w", err)
	}
	return n, nil
}

func (p *Postgres) queryDecisions(ctx context.Context, op, query string, args ...any) ([]model.DecisionRecord, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", op, err)
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate %s: %w", op, err)
	}
	return out, nil
}

func scanDecision(row pgx.Row) (model.DecisionRecord, error) {
	var (
		rec         model.DecisionRecord
		constraints []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.Decision, &rec.Reason, &rec.Alternatives,
		&constraints, &rec.Outcome, &rec.OutcomeTimestamp, &rec.Tags,
		&rec.Snapshot.DecisionCount,
	)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	if err := json.Unmarshal(constraints, &rec.Constraints); err != nil {
		return model.DecisionRecord{}, fmt.Errorf("unmarshal constraints: %w", err)
	}
	rec.Snapshot.Timestamp = rec.Timestamp
	return rec, nil
}
