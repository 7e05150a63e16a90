// Package semantic defines the similarity-search port the broker writes
// through. Implementations index events best-effort: the broker never
// fails a write because indexing failed.
package semantic

import (
	"context"

	"github.com/rcliao/membroker/internal/model"
)

// Hit is one similarity match, referencing an event by id.
type Hit struct {
	EventID string
	Score   float64
}

// Index is implemented by similarity backends.
type Index interface {
	// Index adds or replaces the event in the backend.
	Index(ctx context.Context, e *model.MemoryEvent) error

	// QuerySimilar returns up to limit events ranked by similarity to
	// the query text, best first.
	QuerySimilar(ctx context.Context, text string, limit int) ([]Hit, error)
}
