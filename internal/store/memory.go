package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kagami-ai/kagami/internal/model"
)

// Persister is the load-all/save-all persistence collaborator for the
// memory store. Implementations must treat a missing backing file as an
// empty log, not an error.
type Persister interface {
	Load(ctx context.Context) ([]model.DecisionRecord, error)
	Save(ctx context.Context, records []model.DecisionRecord) error
}

// defaultWriteTimeout bounds a single persister write. The persister is
// the only potentially slow collaborator in the write path.
const defaultWriteTimeout = 5 * time.Second

// Memory is the in-memory decision log, persisted wholesale through a
// Persister after every write. A mutex serializes the read-modify-write
// of the backing slice; the original assumed a single cooperative caller,
// which does not hold for an HTTP daemon.
type Memory struct {
	mu           sync.Mutex
	records      []model.DecisionRecord
	persister    Persister
	writeTimeout time.Duration
	now          func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithWriteTimeout bounds each persister write.
func WithWriteTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) { m.writeTimeout = d }
}

// NewMemory creates a memory store and loads any existing records from the
// persister. A nil persister gives an ephemeral store (used in tests).
func NewMemory(ctx context.Context, p Persister, opts ...MemoryOption) (*Memory, error) {
	m := &Memory{
		persister:    p,
		writeTimeout: defaultWriteTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if p != nil {
		records, err := p.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("store: load decisions: %w", err)
		}
		m.records = records
	}
	return m, nil
}

// Add appends a new record and persists the full log.
// On a persister error the append is rolled back so the in-memory log
// always mirrors what is on disk.
func (m *Memory) Add(ctx context.Context, in model.DecisionInput) (model.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec := model.DecisionRecord{
		ID:           fmt.Sprintf("dec_%d", len(m.records)),
		Timestamp:    now,
		Decision:     in.Decision,
		Reason:       in.Reason,
		Alternatives: append([]string(nil), in.Alternatives...),
		Constraints:  copyConstraints(in.Constraints),
		Outcome:      in.Outcome,
		Tags:         append([]string(nil), in.Tags...),
		Snapshot: model.Snapshot{
			Timestamp:     now,
			DecisionCount: len(m.records),
		},
	}

	m.records = append(m.records, rec)
	if err := m.persist(ctx); err != nil {
		m.records = m.records[:len(m.records)-1]
		return model.DecisionRecord{}, err
	}
	return rec, nil
}

// UpdateOutcome sets the outcome of an existing record.
func (m *Memory) UpdateOutcome(ctx context.Context, id, outcome string) (model.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ID != id {
			continue
		}
		prev := m.records[i]
		ts := m.now()
		m.records[i].Outcome = outcome
		m.records[i].OutcomeTimestamp = &ts
		if err := m.persist(ctx); err != nil {
			m.records[i] = prev
			return model.DecisionRecord{}, err
		}
		return m.records[i], nil
	}
	return model.DecisionRecord{}, fmt.Errorf("store: update outcome %q: %w", id, ErrNotFound)
}

// Recent returns the n most recently timestamped records, descending.
func (m *Memory) Recent(_ context.Context, n int) ([]model.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snapshotLocked()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// ByTag returns records carrying tag, in insertion order.
func (m *Memory) ByTag(_ context.Context, tag string) ([]model.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.DecisionRecord
	for _, rec := range m.records {
		if rec.HasTag(tag) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Timeline returns all records ascending by timestamp.
func (m *Memory) Timeline(_ context.Context) ([]model.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snapshotLocked()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// FindSimilar returns records whose decision text overlaps text by more
// than two tokens, descending by overlap.
func (m *Memory) FindSimilar(_ context.Context, text string) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return matchSimilar(m.records, text), nil
}

// Count returns the number of records.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// persist saves the full log through the persister under a write deadline.
// Caller must hold the mutex.
func (m *Memory) persist(ctx context.Context) error {
	if m.persister == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	if err := m.persister.Save(ctx, m.records); err != nil {
		return fmt.Errorf("store: persist decisions: %w", err)
	}
	return nil
}

// snapshotLocked copies the record slice so callers can sort freely.
// Caller must hold the mutex.
func (m *Memory) snapshotLocked() []model.DecisionRecord {
	return append([]model.DecisionRecord(nil), m.records...)
}

func copyConstraints(src map[string]string) map[string]string {
	if src == nil {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
