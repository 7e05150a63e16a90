// Package chromem adapts the embedded chromem-go vector store to the
// semantic.Index port.
package chromem

import (
	"context"
	"fmt"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/semantic"
)

const collectionName = "memories"

// Store indexes events in a chromem-go collection, in memory or backed
// by a directory.
type Store struct {
	col *chromemgo.Collection
}

// New builds an in-memory store. The index is rebuilt on restart by
// replaying writes, so losing it is harmless.
func New(embed chromemgo.EmbeddingFunc) (*Store, error) {
	return newStore(chromemgo.NewDB(), embed)
}

// NewPersistent builds a store persisted under dir, surviving restarts.
func NewPersistent(dir string, embed chromemgo.EmbeddingFunc) (*Store, error) {
	db, err := chromemgo.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return newStore(db, embed)
}

func newStore(db *chromemgo.DB, embed chromemgo.EmbeddingFunc) (*Store, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	return &Store{col: col}, nil
}

// Index adds the event to the collection, keyed by event id. Scope and
// type travel as document metadata so callers can post-filter hits.
func (s *Store) Index(ctx context.Context, e *model.MemoryEvent) error {
	doc := chromemgo.Document{
		ID:      e.ID,
		Content: e.Content,
		Metadata: map[string]string{
			"scope":        string(e.Scope),
			"memory_type":  string(e.MemoryType),
			"source_agent": string(e.SourceAgent),
		},
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index event %s: %w", e.ID, err)
	}
	return nil
}

// QuerySimilar returns the closest indexed events. chromem rejects
// queries asking for more results than documents, so the limit is
// clamped to the collection size.
func (s *Store) QuerySimilar(ctx context.Context, text string, limit int) ([]semantic.Hit, error) {
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	results, err := s.col.Query(ctx, text, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	hits := make([]semantic.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, semantic.Hit{EventID: r.ID, Score: float64(r.Similarity)})
	}
	return hits, nil
}

var _ semantic.Index = (*Store)(nil)
