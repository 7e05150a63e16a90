// Package scoring computes importance scores (at write time) and recall
// scores (at query time) for memory events. Both scorers are pure
// functions of the event plus an explicit Context so they can be tested
// in isolation.
package scoring

import (
	"math"
	"time"

	"github.com/rcliao/membroker/internal/model"
)

// Outcome values recorded under metadata["outcome"].
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
	OutcomeUnknown = "unknown"
)

// ImportanceWeights weight the dynamic factors of the importance score.
// They should sum to 1.0; the Policy Manager renormalizes after updates.
type ImportanceWeights struct {
	Outcome       float64 `json:"outcome"`
	Reuse         float64 `json:"reuse"`
	CrossImpact   float64 `json:"cross_impact"`
	Novelty       float64 `json:"novelty"`
	UserSignal    float64 `json:"user_signal"`
	CostReduction float64 `json:"cost_reduction"`
}

// DefaultImportanceWeights returns the stock importance weights.
func DefaultImportanceWeights() ImportanceWeights {
	return ImportanceWeights{
		Outcome:       0.25,
		Reuse:         0.20,
		CrossImpact:   0.20,
		Novelty:       0.15,
		UserSignal:    0.15,
		CostReduction: 0.05,
	}
}

// RecallWeights weight the components of the recall score.
type RecallWeights struct {
	Importance float64 `json:"importance"`
	Recency    float64 `json:"recency"`
	RoleFit    float64 `json:"role_fit"`
	Outcome    float64 `json:"outcome"`
}

// DefaultRecallWeights returns the stock recall weights.
func DefaultRecallWeights() RecallWeights {
	return RecallWeights{Importance: 0.4, Recency: 0.3, RoleFit: 0.2, Outcome: 0.1}
}

// Boosts are additive recall adjustments applied after the weighted sum.
type Boosts struct {
	SameTask       float64 `json:"same_task"`
	SameSession    float64 `json:"same_session"`
	FailurePattern float64 `json:"failure_pattern"`
	HighConfidence float64 `json:"high_confidence"`
}

// DefaultBoosts returns the stock boost values.
func DefaultBoosts() Boosts {
	return Boosts{SameTask: 0.15, SameSession: 0.10, FailurePattern: 0.20, HighConfidence: 0.05}
}

// Context carries everything the scorers need about the current
// tool use, session and memory statistics. The zero value is usable;
// NewContext sets ToolSuccess, which defaults to true.
type Context struct {
	ToolName    string
	ToolSuccess bool

	SessionID string
	TaskID    string
	AgentRole string

	// UserSignal is explicit feedback in [-1, 1].
	UserSignal float64

	// Novelty counters, maintained by the caller.
	SimilarCount int
	TotalCount   int

	// PastReuseCount is how often this pattern was reused before.
	PastReuseCount int
}

// NewContext returns a Context with the neutral defaults.
func NewContext() *Context {
	return &Context{ToolSuccess: true}
}

// typeBaseWeights are the per-type priors: some memory types are
// inherently more durable than others.
var typeBaseWeights = map[model.Type]float64{
	model.TypePreference:  0.9,
	model.TypeDecision:    0.85,
	model.TypeWorkflow:    0.8,
	model.TypePlan:        0.8,
	model.TypeResearch:    0.75,
	model.TypeError:       0.7,
	model.TypeArtifact:    0.7,
	model.TypeObservation: 0.5,
}

// TypeBaseWeight returns the importance prior for a memory type.
func TypeBaseWeight(t model.Type) float64 {
	if w, ok := typeBaseWeights[t]; ok {
		return w
	}
	return 0.5
}

// Engine evaluates both scoring formulas with a configured weight set.
type Engine struct {
	imp    ImportanceWeights
	rec    RecallWeights
	boosts Boosts
}

// NewEngine builds an engine with explicit weights.
func NewEngine(imp ImportanceWeights, rec RecallWeights, boosts Boosts) *Engine {
	return &Engine{imp: imp, rec: rec, boosts: boosts}
}

// NewDefaultEngine builds an engine with the stock weights.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultImportanceWeights(), DefaultRecallWeights(), DefaultBoosts())
}

// Importance computes the write-time importance score in [0,1]:
// 40% type prior, 60% weighted dynamic factors.
func (eng *Engine) Importance(e *model.MemoryEvent, ctx *Context) float64 {
	if ctx == nil {
		ctx = NewContext()
	}
	w := eng.imp

	dynamic := w.Outcome*outcomeScore(e, ctx) +
		w.Reuse*reuseScore(e, ctx) +
		w.CrossImpact*crossImpactScore(e) +
		w.Novelty*noveltyScore(ctx) +
		w.UserSignal*userSignalScore(e, ctx) +
		w.CostReduction*costReductionScore(e)

	return clamp(0.4*TypeBaseWeight(e.MemoryType) + 0.6*dynamic)
}

// Recall computes the query-time relevance score in [0,1]. The stored
// importance comes from metadata; pass a negative storedImportance to
// read it from the event.
func (eng *Engine) Recall(e *model.MemoryEvent, ctx *Context, storedImportance float64, now time.Time) float64 {
	if ctx == nil {
		ctx = NewContext()
	}
	if storedImportance < 0 {
		storedImportance = e.ImportanceScore()
	}
	w := eng.rec

	score := w.Importance*storedImportance +
		w.Recency*RecencyScore(e.CreatedAt, now) +
		w.RoleFit*roleFitScore(e, ctx) +
		w.Outcome*outcomeRelevanceScore(e, ctx)

	return clamp(eng.applyBoosts(e, ctx, score))
}

// outcomeScore favors failures: they are maximally instructive.
func outcomeScore(e *model.MemoryEvent, ctx *Context) float64 {
	switch e.MetaString("outcome") {
	case OutcomeFailure:
		return 1.0
	case OutcomeSuccess:
		return 0.8
	case OutcomePartial:
		return 0.7
	default:
		if ctx.ToolSuccess {
			return 0.6
		}
		return 0.5
	}
}

// reuseTypeMultiplier ranks how reusable each type tends to be.
var reuseTypeMultiplier = map[model.Type]float64{
	model.TypePreference:  1.0,
	model.TypeWorkflow:    0.9,
	model.TypeError:       0.8,
	model.TypeDecision:    0.7,
	model.TypeResearch:    0.6,
	model.TypeObservation: 0.5,
	model.TypePlan:        0.4,
	model.TypeArtifact:    0.3,
}

func reuseScore(e *model.MemoryEvent, ctx *Context) float64 {
	mult, ok := reuseTypeMultiplier[e.MemoryType]
	if !ok {
		mult = 0.5
	}
	if ctx.PastReuseCount > 0 {
		boost := math.Min(float64(ctx.PastReuseCount)/10.0, 0.3)
		return math.Min(mult+boost, 1.0)
	}
	return mult
}

func crossImpactScore(e *model.MemoryEvent) float64 {
	var score float64
	switch e.Scope {
	case model.ScopePublic:
		score = 1.0
	case model.ScopeUser:
		score = 0.7
	case model.ScopeAgent:
		score = 0.4
	case model.ScopeSession:
		score = 0.2
	default:
		score = 0.5
	}
	for _, tag := range []string{"shared", "global", "important", "core"} {
		if e.HasTag(tag) {
			return math.Min(score+0.2, 1.0)
		}
	}
	return score
}

// noveltyScore is 1 − similar/total, floored at 0.1. Unseen content
// scores 1.0.
func noveltyScore(ctx *Context) float64 {
	if ctx.SimilarCount == 0 {
		return 1.0
	}
	if ctx.TotalCount == 0 {
		return 0.8
	}
	novelty := 1.0 - float64(ctx.SimilarCount)/float64(ctx.TotalCount)
	return math.Max(novelty, 0.1)
}

func userSignalScore(e *model.MemoryEvent, ctx *Context) float64 {
	normalized := (ctx.UserSignal + 1.0) / 2.0
	if e.HasTag("important") || e.HasTag("remember") {
		normalized = math.Max(normalized, 0.9)
	} else if e.HasTag("ignore") || e.HasTag("forget") {
		normalized = math.Min(normalized, 0.1)
	}
	return normalized
}

func costReductionScore(e *model.MemoryEvent) float64 {
	switch e.MemoryType {
	case model.TypeError:
		return 0.9
	case model.TypeResearch, model.TypeArtifact:
		return 0.7
	case model.TypeDecision:
		return 0.6
	default:
		return 0.4
	}
}

// RecencyScore decays piecewise with age: 1.0 fresh, 0.5 at 7 days, 0.1
// at 30 days, then slowly toward 0.01. The breakpoints match the
// hot/warm/cold tiers used by compaction.
func RecencyScore(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0.5
	}
	ageDays := now.Sub(createdAt).Hours() / 24.0
	switch {
	case ageDays <= 0:
		return 1.0
	case ageDays <= 7:
		return 1.0 - (ageDays/7.0)*0.5
	case ageDays <= 30:
		return 0.5 - ((ageDays-7)/23.0)*0.4
	default:
		return math.Max(0.1-((ageDays-30)/365.0)*0.09, 0.01)
	}
}

// roleRelevance is the fixed cross-agent relevance matrix, keyed by
// (producer, consumer).
var roleRelevance = map[[2]model.Agent]float64{
	{model.AgentCodex, model.AgentClaude}:  0.8,
	{model.AgentGemini, model.AgentClaude}: 0.7,
	{model.AgentClaude, model.AgentCodex}:  0.6,
	{model.AgentGemini, model.AgentCodex}:  0.7,
}

func roleFitScore(e *model.MemoryEvent, ctx *Context) float64 {
	if ctx.AgentRole == "" {
		return 0.5
	}
	role := model.Agent(ctx.AgentRole)
	if e.SourceAgent == role {
		return 1.0
	}
	if v, ok := roleRelevance[[2]model.Agent{e.SourceAgent, role}]; ok {
		return v
	}
	return 0.4
}

func outcomeRelevanceScore(e *model.MemoryEvent, ctx *Context) float64 {
	outcome := e.MetaString("outcome")
	if outcome == OutcomeFailure && ctx.ToolName != "" {
		if tool := e.MetaString("tool_name"); tool != "" && tool == ctx.ToolName {
			return 1.0 // same tool failed before: a direct warning
		}
		return 0.8
	}
	if outcome == OutcomeSuccess {
		return 0.6 // successes are useful templates
	}
	return 0.5
}

func (eng *Engine) applyBoosts(e *model.MemoryEvent, ctx *Context, score float64) float64 {
	if ctx.TaskID != "" && e.MetaString("task_id") == ctx.TaskID {
		score += eng.boosts.SameTask
	}
	if ctx.SessionID != "" && e.MetaString("session_id") == ctx.SessionID {
		score += eng.boosts.SameSession
	}
	if ctx.ToolName != "" &&
		e.MetaString("tool_name") == ctx.ToolName &&
		e.MetaString("outcome") == OutcomeFailure {
		score += eng.boosts.FailurePattern
	}
	if e.Confidence >= 0.9 {
		score += eng.boosts.HighConfidence
	}
	return score
}

func clamp(v float64) float64 {
	return math.Min(math.Max(v, 0.0), 1.0)
}
