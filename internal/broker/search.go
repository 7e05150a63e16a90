package broker

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/ndjson"
	"github.com/rcliao/membroker/internal/scoring"
)

// SearchParams filter and rank a search. The zero value returns the
// most recent visible events.
type SearchParams struct {
	// Query is matched case-insensitively against content and context.
	// Empty matches everything.
	Query string

	// Scope narrows the search to one scope. Empty searches the current
	// session, the project, and the global partition.
	Scope model.Scope

	Agent model.Agent
	Type  model.Type

	// Limit caps results; zero means 10.
	Limit int

	// UseSemantic merges similarity hits into the keyword results when
	// the broker has an index.
	UseSemantic bool

	// ScoringCtx switches ranking from recency to recall scoring and
	// applies the policy score threshold.
	ScoringCtx *scoring.Context
}

// Search returns events matching the params, best first. Other
// sessions' partitions are never read.
func (b *Broker) Search(ctx context.Context, p SearchParams) ([]*model.MemoryEvent, error) {
	if p.Limit <= 0 {
		if p.ScoringCtx != nil {
			p.Limit = b.policies.Recall().TopK
		} else {
			p.Limit = 10
		}
	}

	seen := map[string]bool{}
	var matches []*model.MemoryEvent
	for _, path := range b.searchFiles(p.Scope) {
		for _, e := range ndjson.Load(path) {
			if seen[e.ID] || !b.matches(e, p) {
				continue
			}
			seen[e.ID] = true
			matches = append(matches, e)
		}
	}

	if p.UseSemantic && b.semantic != nil && p.Query != "" {
		for _, e := range b.semanticMatches(ctx, p) {
			if !seen[e.ID] {
				seen[e.ID] = true
				matches = append(matches, e)
			}
		}
	}

	scores := b.rank(matches, p.ScoringCtx)
	if p.ScoringCtx != nil {
		matches = b.aboveThreshold(matches, scores)
	}
	if len(matches) > p.Limit {
		matches = matches[:p.Limit]
	}
	return matches, nil
}

// searchFiles maps an optional scope filter to partition files.
func (b *Broker) searchFiles(scope model.Scope) []string {
	switch scope {
	case "":
		return b.visibleFiles()
	case model.ScopeSession:
		return []string{b.sessionFile(b.sessionID)}
	case model.ScopeProject:
		return []string{b.projectFile()}
	default:
		return []string{b.globalFile()}
	}
}

// matches applies every non-ranking filter to one event.
func (b *Broker) matches(e *model.MemoryEvent, p SearchParams) bool {
	if p.Scope != "" && e.Scope != p.Scope {
		return false
	}
	if p.Agent != "" && e.SourceAgent != p.Agent {
		return false
	}
	if p.Type != "" && e.MemoryType != p.Type {
		return false
	}
	if p.Query != "" {
		q := strings.ToLower(p.Query)
		if !strings.Contains(strings.ToLower(e.Content), q) &&
			!strings.Contains(strings.ToLower(e.Context), q) {
			return false
		}
	}
	if b.policies.IsExcluded(e.Content) {
		return false
	}
	return true
}

// semanticMatches resolves similarity hits to events and re-applies the
// filters, including session isolation: the index spans all sessions
// but results from foreign sessions are dropped.
func (b *Broker) semanticMatches(ctx context.Context, p SearchParams) []*model.MemoryEvent {
	qctx, cancel := context.WithTimeout(ctx, b.semTimeout)
	defer cancel()

	hits, err := b.semantic.QuerySimilar(qctx, p.Query, p.Limit*2)
	if err != nil {
		b.logger.Warn("semantic query failed", "err", err)
		return nil
	}

	filters := p
	filters.Query = "" // similarity already matched; substring would over-filter
	var out []*model.MemoryEvent
	for _, hit := range hits {
		e := b.getByID(hit.EventID)
		if e == nil {
			continue
		}
		if e.Scope == model.ScopeSession && e.MetaString("session_id") != b.sessionID {
			continue
		}
		if b.matches(e, filters) {
			out = append(out, e)
		}
	}
	return out
}

// rank orders events in place: by recall score when a scoring context
// is given, otherwise newest first. The computed scores are returned so
// the threshold filter does not score each event a second time; without
// a scoring context the map is nil.
func (b *Broker) rank(events []*model.MemoryEvent, sctx *scoring.Context) map[string]float64 {
	if sctx == nil {
		sort.Slice(events, func(i, j int) bool {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		})
		return nil
	}
	now := time.Now().UTC()
	scores := make(map[string]float64, len(events))
	for _, e := range events {
		scores[e.ID] = b.engine.Recall(e, sctx, -1, now)
	}
	sort.Slice(events, func(i, j int) bool {
		return scores[events[i].ID] > scores[events[j].ID]
	})
	return scores
}

// aboveThreshold drops events whose ranked score is under the policy
// minimum.
func (b *Broker) aboveThreshold(events []*model.MemoryEvent, scores map[string]float64) []*model.MemoryEvent {
	min := b.policies.Recall().MinScore
	kept := events[:0]
	for _, e := range events {
		if scores[e.ID] >= min {
			kept = append(kept, e)
		}
	}
	return kept
}

// List returns the newest events in a scope without query filtering.
func (b *Broker) List(ctx context.Context, scope model.Scope, limit int) ([]*model.MemoryEvent, error) {
	return b.Search(ctx, SearchParams{Scope: scope, Limit: limit})
}

// DefaultBudgetWeights split a token budget across scope groups.
var DefaultBudgetWeights = map[string]float64{
	"session": 0.4,
	"project": 0.4,
	"user":    0.2,
}

// eventTokenCost is the rough per-event token estimate used to convert
// budgets into event counts.
const eventTokenCost = 100

// SearchWithBudget assembles a context block under a token budget. Each
// scope group gets budget*weight tokens, converted to an event count at
// roughly one hundred tokens per event, filled with its highest
// importance matches.
func (b *Broker) SearchWithBudget(ctx context.Context, query string, tokenBudget int, weights map[string]float64) ([]*model.MemoryEvent, error) {
	if tokenBudget <= 0 {
		tokenBudget = 2000
	}
	if weights == nil {
		weights = DefaultBudgetWeights
	}

	groups := []struct {
		name string
		path string
	}{
		{"session", b.sessionFile(b.sessionID)},
		{"project", b.projectFile()},
		{"user", b.globalFile()},
	}

	seen := map[string]bool{}
	var out []*model.MemoryEvent
	for _, g := range groups {
		sub := int(float64(tokenBudget) * weights[g.name] / eventTokenCost)
		if sub <= 0 {
			continue
		}
		var candidates []*model.MemoryEvent
		for _, e := range ndjson.Load(g.path) {
			if seen[e.ID] {
				continue
			}
			if !b.matches(e, SearchParams{Query: query}) {
				continue
			}
			candidates = append(candidates, e)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].ImportanceScore() > candidates[j].ImportanceScore()
		})
		if len(candidates) > sub {
			candidates = candidates[:sub]
		}
		for _, e := range candidates {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out, nil
}
