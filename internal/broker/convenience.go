package broker

import (
	"context"

	"github.com/rcliao/membroker/internal/model"
)

// Shorthand writers for the common memory kinds. Each picks the type's
// natural scope and routes through the full write path.

// RememberPreference records a user preference, user scope.
func (b *Broker) RememberPreference(ctx context.Context, content string) (*model.MemoryEvent, error) {
	return b.Add(ctx, AddParams{Content: content, Type: model.TypePreference}, nil)
}

// RememberDecision records a design decision with its rationale,
// project scope.
func (b *Broker) RememberDecision(ctx context.Context, content, rationale string) (*model.MemoryEvent, error) {
	return b.Add(ctx, AddParams{Content: content, Type: model.TypeDecision, Context: rationale}, nil)
}

// RememberResearch records a research finding, public scope.
func (b *Broker) RememberResearch(ctx context.Context, content string, tags ...string) (*model.MemoryEvent, error) {
	return b.Add(ctx, AddParams{Content: content, Type: model.TypeResearch, Tags: tags}, nil)
}

// RememberError records an error pattern and its fix, project scope.
func (b *Broker) RememberError(ctx context.Context, pattern, solution string) (*model.MemoryEvent, error) {
	return b.Add(ctx, AddParams{Content: pattern, Type: model.TypeError, Context: solution}, nil)
}

// RememberWorkflow records a reusable workflow, project scope.
func (b *Broker) RememberWorkflow(ctx context.Context, content string) (*model.MemoryEvent, error) {
	return b.Add(ctx, AddParams{Content: content, Type: model.TypeWorkflow}, nil)
}
