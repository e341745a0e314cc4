// Package store provides the append-only decision log.
//
// Two implementations share the Log interface: Memory (the default,
// backed by a JSON-file Persister for the local single-user daemon) and
// Postgres (server mode, backed by pgx). Records are never deleted and
// only their outcome may change after creation.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/kagami-ai/kagami/internal/model"
)

// ErrNotFound is returned when an operation references an unknown decision id.
//
// The original behavior was a silent no-op on unknown ids in UpdateOutcome;
// surfacing the error was chosen instead so callers can distinguish a typo'd
// id from a successful update. See DESIGN.md.
var ErrNotFound = errors.New("store: decision not found")

// Match pairs a record with its token-overlap count against a query text.
type Match struct {
	Record  model.DecisionRecord `json:"record"`
	Overlap int                  `json:"overlap"`
}

// Log is the append-only decision log.
//
// All reads are total functions over the current snapshot: an empty result
// is not an error. Writes fail only on the backing collaborator's error
// (file I/O or Postgres), which propagates to the caller.
type Log interface {
	// Add assigns a fresh id ("dec_" + current count), a UTC timestamp,
	// and a context snapshot, then appends the record.
	Add(ctx context.Context, in model.DecisionInput) (model.DecisionRecord, error)

	// UpdateOutcome sets the outcome and outcome timestamp of an existing
	// record. Returns ErrNotFound for an unknown id.
	UpdateOutcome(ctx context.Context, id, outcome string) (model.DecisionRecord, error)

	// Recent returns the n largest-timestamp records in descending order,
	// ties broken by insertion order. Fewer than n records returns all.
	Recent(ctx context.Context, n int) ([]model.DecisionRecord, error)

	// ByTag returns all records carrying the tag, in insertion order.
	ByTag(ctx context.Context, tag string) ([]model.DecisionRecord, error)

	// Timeline returns all records sorted ascending by timestamp.
	Timeline(ctx context.Context) ([]model.DecisionRecord, error)

	// FindSimilar returns records whose decision text shares more than
	// two tokens with text, sorted descending by overlap.
	FindSimilar(ctx context.Context, text string) ([]Match, error)

	// Count returns the number of records in the log.
	Count(ctx context.Context) (int, error)
}

// minSimilarOverlap is the token-overlap threshold for FindSimilar.
const minSimilarOverlap = 2

// matchSimilar computes FindSimilar over an in-memory snapshot. Shared by
// both implementations: the Postgres store also fetches the full log and
// matches here, because the log is human-scale and the tokenization is
// deliberately lexical (see model.Tokens).
func matchSimilar(records []model.DecisionRecord, text string) []Match {
	query := model.Tokens(text)
	var matches []Match
	for _, rec := range records {
		overlap := model.Overlap(query, model.Tokens(rec.Decision))
		if overlap > minSimilarOverlap {
			matches = append(matches, Match{Record: rec, Overlap: overlap})
		}
	}
	// Descending by overlap; stable, so equal overlaps keep insertion order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Overlap > matches[j].Overlap
	})
	return matches
}
