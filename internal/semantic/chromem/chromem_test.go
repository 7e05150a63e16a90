package chromem

import (
	"context"
	"testing"

	"github.com/rcliao/membroker/internal/embedding"
	"github.com/rcliao/membroker/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(embedding.AsChromemFunc(embedding.NewHashEmbedder(64)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func indexed(t *testing.T, s *Store, id, content string) {
	t.Helper()
	e := &model.MemoryEvent{
		ID:          id,
		Content:     content,
		MemoryType:  model.TypeObservation,
		Scope:       model.ScopeProject,
		SourceAgent: model.AgentClaude,
		Confidence:  1.0,
	}
	e.Stamp()
	if err := s.Index(context.Background(), e); err != nil {
		t.Fatalf("Index: %v", err)
	}
}

func TestQuerySimilarRanksByOverlap(t *testing.T) {
	s := newTestStore(t)
	indexed(t, s, "ev-tests", "always run the unit tests before committing changes")
	indexed(t, s, "ev-lang", "user prefers responses written in japanese")
	indexed(t, s, "ev-db", "database migrations live under the schema directory")

	hits, err := s.QuerySimilar(context.Background(), "run the unit tests", 2)
	if err != nil {
		t.Fatalf("QuerySimilar: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].EventID != "ev-tests" {
		t.Errorf("best hit = %s, want ev-tests", hits[0].EventID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not ordered best first")
	}
}

func TestQuerySimilarEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.QuerySimilar(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("QuerySimilar on empty index: %v", err)
	}
	if hits != nil {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestQuerySimilarLimitClamped(t *testing.T) {
	s := newTestStore(t)
	indexed(t, s, "only", "a single indexed memory")

	hits, err := s.QuerySimilar(context.Background(), "memory", 10)
	if err != nil {
		t.Fatalf("limit above collection size must not error: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestPersistentStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	embed := embedding.AsChromemFunc(embedding.NewHashEmbedder(64))

	s1, err := NewPersistent(dir, embed)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}
	indexed(t, s1, "persisted", "retry with exponential backoff on timeouts")

	s2, err := NewPersistent(dir, embed)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	hits, err := s2.QuerySimilar(context.Background(), "exponential backoff", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].EventID != "persisted" {
		t.Errorf("persisted document lost: %v", hits)
	}
}
