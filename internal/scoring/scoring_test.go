package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/membroker/internal/model"
)

func event(t model.Type, scope model.Scope, meta map[string]any) *model.MemoryEvent {
	return &model.MemoryEvent{
		Content:     "something happened",
		MemoryType:  t,
		Scope:       scope,
		SourceAgent: model.AgentClaude,
		Confidence:  1.0,
		Metadata:    meta,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestImportanceFailureBeatsSuccess(t *testing.T) {
	eng := NewDefaultEngine()

	failed := event(model.TypeObservation, model.ScopeSession, map[string]any{"outcome": OutcomeFailure})
	succeeded := event(model.TypeObservation, model.ScopeSession, map[string]any{"outcome": OutcomeSuccess})

	assert.Greater(t, eng.Importance(failed, nil), eng.Importance(succeeded, nil),
		"failures are more instructive than successes")
}

func TestImportanceTypePriorOrdering(t *testing.T) {
	eng := NewDefaultEngine()

	pref := eng.Importance(event(model.TypePreference, model.ScopeUser, nil), nil)
	obs := eng.Importance(event(model.TypeObservation, model.ScopeUser, nil), nil)
	assert.Greater(t, pref, obs, "preferences outrank observations")

	for _, e := range []*model.MemoryEvent{
		event(model.TypePreference, model.ScopePublic, map[string]any{"outcome": OutcomeFailure}),
		event(model.TypeObservation, model.ScopeSession, nil),
	} {
		score := eng.Importance(e, nil)
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)
	}
}

func TestImportanceTagOverrides(t *testing.T) {
	eng := NewDefaultEngine()

	plain := event(model.TypeObservation, model.ScopeSession, nil)
	marked := event(model.TypeObservation, model.ScopeSession, nil)
	marked.Tags = []string{"important"}
	ignored := event(model.TypeObservation, model.ScopeSession, nil)
	ignored.Tags = []string{"ignore"}

	assert.Greater(t, eng.Importance(marked, nil), eng.Importance(plain, nil))
	assert.Less(t, eng.Importance(ignored, nil), eng.Importance(plain, nil))
}

func TestNoveltyScore(t *testing.T) {
	assert.Equal(t, 1.0, noveltyScore(&Context{}))
	assert.Equal(t, 0.8, noveltyScore(&Context{SimilarCount: 1}))
	assert.InDelta(t, 0.5, noveltyScore(&Context{SimilarCount: 5, TotalCount: 10}), 1e-9)
	// Floored at 0.1 even when everything looks similar.
	assert.InDelta(t, 0.1, noveltyScore(&Context{SimilarCount: 10, TotalCount: 10}), 1e-9)
}

func TestReuseBoostIsCapped(t *testing.T) {
	e := event(model.TypeWorkflow, model.ScopeProject, nil)
	base := reuseScore(e, &Context{})
	few := reuseScore(e, &Context{PastReuseCount: 2})
	many := reuseScore(e, &Context{PastReuseCount: 100})

	assert.Greater(t, few, base)
	assert.LessOrEqual(t, many, 1.0)
	assert.InDelta(t, base+0.3, many, 1e-9, "reuse contribution caps at 0.3 before the 1.0 clamp")
}

func TestRecencyDecay(t *testing.T) {
	now := time.Now()
	day := 24 * time.Hour

	assert.Equal(t, 1.0, RecencyScore(now, now))
	assert.InDelta(t, 0.5, RecencyScore(now.Add(-7*day), now), 0.01)
	assert.InDelta(t, 0.1, RecencyScore(now.Add(-30*day), now), 0.01)
	assert.GreaterOrEqual(t, RecencyScore(now.Add(-5*365*day), now), 0.01)
}

func TestRecallRecencyMonotonic(t *testing.T) {
	eng := NewDefaultEngine()
	now := time.Now().UTC()

	young := event(model.TypeObservation, model.ScopeSession, nil)
	young.CreatedAt = now.Add(-1 * time.Hour)
	old := young.Clone()
	old.CreatedAt = now.Add(-20 * 24 * time.Hour)

	assert.GreaterOrEqual(t,
		eng.Recall(young, nil, -1, now),
		eng.Recall(old, nil, -1, now),
		"younger of two otherwise-identical events must not score lower")
}

func TestRecallBoosts(t *testing.T) {
	eng := NewDefaultEngine()
	now := time.Now().UTC()

	base := event(model.TypeObservation, model.ScopeSession, map[string]any{
		"outcome":   OutcomeFailure,
		"tool_name": "Bash",
	})
	base.Confidence = 0.5

	ctx := &Context{ToolName: "Bash", ToolSuccess: true}
	plain := &Context{ToolSuccess: true}

	// Same-tool failure gains both the max outcome-relevance component
	// (0.1 × (1.0−0.5)) and the failure-pattern boost (0.2).
	boosted := eng.Recall(base, ctx, -1, now)
	unboosted := eng.Recall(base, plain, -1, now)
	assert.InDelta(t, 0.25, boosted-unboosted, 1e-9)

	confident := base.Clone()
	confident.Confidence = 0.95
	assert.InDelta(t, 0.05, eng.Recall(confident, plain, -1, now)-unboosted, 1e-9)

	tagged := base.Clone()
	tagged.Metadata = map[string]any{"task_id": "T1", "session_id": "S1"}
	withIDs := &Context{TaskID: "T1", SessionID: "S1", ToolSuccess: true}
	withoutIDs := &Context{ToolSuccess: true}
	assert.InDelta(t, 0.25, eng.Recall(tagged, withIDs, -1, now)-eng.Recall(tagged, withoutIDs, -1, now), 1e-9)
}

func TestRecallClamped(t *testing.T) {
	eng := NewDefaultEngine()
	now := time.Now().UTC()

	e := event(model.TypeError, model.ScopePublic, map[string]any{
		"outcome":          OutcomeFailure,
		"tool_name":        "Bash",
		"task_id":          "T1",
		"session_id":       "S1",
		"importance_score": 1.0,
	})
	e.Confidence = 1.0
	e.CreatedAt = now

	ctx := &Context{ToolName: "Bash", TaskID: "T1", SessionID: "S1", ToolSuccess: true}
	score := eng.Recall(e, ctx, -1, now)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.9)
}

func TestRoleFit(t *testing.T) {
	research := event(model.TypeResearch, model.ScopePublic, nil)
	research.SourceAgent = model.AgentGemini

	assert.Equal(t, 1.0, roleFitScore(research, &Context{AgentRole: "gemini"}))
	assert.Equal(t, 0.7, roleFitScore(research, &Context{AgentRole: "claude"}))
	assert.Equal(t, 0.4, roleFitScore(research, &Context{AgentRole: "copilot"}))
	assert.Equal(t, 0.5, roleFitScore(research, &Context{}))
}
