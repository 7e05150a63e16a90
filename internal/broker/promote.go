package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/ndjson"
)

// PromotionStats counts promotions made by one PromoteEligible pass.
type PromotionStats struct {
	SessionToProject int `json:"session_to_project"`
	ProjectToGlobal  int `json:"project_to_global"`
}

// Promote copies an event into a wider scope. Promotion is additive:
// the original stays where it is, and the copy gets a fresh id, a
// "promoted" tag, and provenance metadata.
func (b *Broker) Promote(ctx context.Context, e *model.MemoryEvent, target model.Scope) (*model.MemoryEvent, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", model.ErrValidation, target)
	}

	c := e.Clone()
	c.ID = model.NewID()
	c.Scope = target
	c.CreatedAt = time.Now().UTC()
	if !c.HasTag("promoted") {
		c.Tags = append(c.Tags, "promoted")
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata["promoted_at"] = c.CreatedAt.Format(time.RFC3339)
	c.Metadata["promoted_from"] = e.ID

	if err := ndjson.Append(b.storagePath(target), c); err != nil {
		return nil, fmt.Errorf("promote event %s: %w", e.ID, err)
	}
	b.cache.Set(c.ID, c, 1)
	b.indexSemantic(ctx, c)
	b.logger.Info("promoted memory", "from", e.Scope, "to", target, "id", c.ID)
	return c, nil
}

// PromoteEligible scans the current session and the project partition
// and promotes whatever meets the reuse criteria. Already promoted
// events and existing copies are skipped, so the pass is idempotent.
func (b *Broker) PromoteEligible(ctx context.Context) (PromotionStats, error) {
	var stats PromotionStats

	promotedFrom := map[string]bool{}
	for _, path := range b.visibleFiles() {
		for _, e := range ndjson.Load(path) {
			if src := e.MetaString("promoted_from"); src != "" {
				promotedFrom[src] = true
			}
		}
	}

	for _, e := range ndjson.Load(b.sessionFile(b.sessionID)) {
		if e.HasTag("promoted") || promotedFrom[e.ID] || !sessionPromotable(e) {
			continue
		}
		if _, err := b.Promote(ctx, e, model.ScopeProject); err != nil {
			return stats, err
		}
		promotedFrom[e.ID] = true
		stats.SessionToProject++
	}

	for _, e := range ndjson.Load(b.projectFile()) {
		if e.HasTag("promoted") || promotedFrom[e.ID] || !projectPromotable(e) {
			continue
		}
		target := model.ScopeUser
		if e.MemoryType == model.TypeResearch {
			target = model.ScopePublic
		}
		if _, err := b.Promote(ctx, e, target); err != nil {
			return stats, err
		}
		promotedFrom[e.ID] = true
		stats.ProjectToGlobal++
	}

	return stats, nil
}

// sessionPromotable: reused at least twice, reliably successful, or
// explicitly marked.
func sessionPromotable(e *model.MemoryEvent) bool {
	if e.MetaFloat("reuse_count", 0) >= 2 {
		return true
	}
	if e.MetaFloat("success_rate", 0) >= 0.8 {
		return true
	}
	return e.HasTag("important") || e.HasTag("promote")
}

// projectPromotable: proven across projects, or a preference that
// belongs to the user regardless of project.
func projectPromotable(e *model.MemoryEvent) bool {
	if e.MetaFloat("cross_project_success", 0) >= 2 {
		return true
	}
	return e.MemoryType == model.TypePreference
}
