package policy

import (
	"math"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestDefaults(t *testing.T) {
	m := newTestManager(t)

	r := m.Recall()
	if r.TopK != 5 || r.MinScore != 0.5 || r.EnableSemantic {
		t.Errorf("unexpected recall defaults: %+v", r)
	}
	w := m.Scoring().Importance
	sum := w.Outcome + w.Reuse + w.CrossImpact + w.Novelty + w.UserSignal + w.CostReduction
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("importance weights sum to %v", sum)
	}
}

func TestThresholdAndTopKClamped(t *testing.T) {
	m := newTestManager(t)

	if err := m.UpdateRecallThreshold(1.5); err != nil {
		t.Fatal(err)
	}
	if got := m.Recall().MinScore; got != 1.0 {
		t.Errorf("threshold not clamped high: %v", got)
	}
	if err := m.UpdateRecallThreshold(-0.2); err != nil {
		t.Fatal(err)
	}
	if got := m.Recall().MinScore; got != 0.0 {
		t.Errorf("threshold not clamped low: %v", got)
	}

	if err := m.UpdateTopK(100); err != nil {
		t.Fatal(err)
	}
	if got := m.Recall().TopK; got != 20 {
		t.Errorf("top_k not clamped: %d", got)
	}
	if err := m.UpdateTopK(0); err != nil {
		t.Fatal(err)
	}
	if got := m.Recall().TopK; got != 1 {
		t.Errorf("top_k not clamped low: %d", got)
	}
}

func TestPatchRenormalizes(t *testing.T) {
	m := newTestManager(t)

	half := 0.5
	w, err := m.PatchImportanceWeights(ImportancePatch{Outcome: &half})
	if err != nil {
		t.Fatal(err)
	}
	sum := w.Outcome + w.Reuse + w.CrossImpact + w.Novelty + w.UserSignal + w.CostReduction
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("patched weights sum to %v", sum)
	}
	if w.Outcome <= w.Reuse {
		t.Error("raised weight should dominate after renormalization")
	}

	zero := 0.0
	if _, err := m.PatchRecallWeights(RecallPatch{
		Importance: &zero, Recency: &zero, RoleFit: &zero, Outcome: &zero,
	}); err == nil {
		t.Error("all-zero weights must be refused")
	}
}

func TestPersistenceAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m1.UpdateTopK(9); err != nil {
		t.Fatal(err)
	}
	if err := m1.AddExclusionRule("scratch note", "noise"); err != nil {
		t.Fatal(err)
	}
	if err := m1.AddExclusionRule("/^ls -la/", "directory listings"); err != nil {
		t.Fatal(err)
	}

	m2, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := m2.Recall().TopK; got != 9 {
		t.Errorf("top_k not persisted: %d", got)
	}
	if !m2.IsExcluded("this is a Scratch Note about nothing") {
		t.Error("exclusion rule not persisted")
	}
	if !m2.IsExcluded("ls -la /tmp") {
		t.Error("regex rule not recompiled after reload")
	}
}

func TestExclusionRules(t *testing.T) {
	m := newTestManager(t)

	if err := m.AddExclusionRule("temporary debug", "low value"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddExclusionRule("/^ls -la/", "directory listings"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddExclusionRule("/[unclosed/", "bad"); err == nil {
		t.Error("invalid regex accepted")
	}

	if !m.IsExcluded("a Temporary Debug statement") {
		t.Error("substring match is case-insensitive")
	}
	if !m.IsExcluded("ls -la /tmp") {
		t.Error("regex rule did not match")
	}
	if m.IsExcluded("real finding worth keeping") {
		t.Error("false positive exclusion")
	}

	if err := m.RemoveExclusionRule("temporary debug"); err != nil {
		t.Fatal(err)
	}
	if m.IsExcluded("a temporary debug statement") {
		t.Error("removed rule still matching")
	}
}

func TestAddExclusionRuleDeduplicates(t *testing.T) {
	m := newTestManager(t)
	if err := m.AddExclusionRule("noise", "first"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddExclusionRule("noise", "second"); err != nil {
		t.Fatal(err)
	}
	rules := m.Exclusions()
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].Reason != "second" {
		t.Errorf("duplicate add should replace, got reason %q", rules[0].Reason)
	}
}

func TestEvaluateContribution(t *testing.T) {
	m := newTestManager(t)

	// Too few samples: no action regardless of score.
	changed, err := m.EvaluateContribution("chatty pattern", 0.05, 3)
	if err != nil || changed {
		t.Errorf("acted on %d samples", 3)
	}

	changed, err = m.EvaluateContribution("chatty pattern", 0.05, 12)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || !m.IsExcluded("a chatty pattern indeed") {
		t.Error("low contributor not excluded")
	}

	// Repeat evaluation is a no-op once excluded.
	changed, _ = m.EvaluateContribution("chatty pattern", 0.05, 12)
	if changed {
		t.Error("re-excluded an already excluded pattern")
	}

	changed, err = m.EvaluateContribution("chatty pattern", 0.8, 15)
	if err != nil {
		t.Fatal(err)
	}
	if !changed || m.IsExcluded("a chatty pattern indeed") {
		t.Error("recovered pattern still excluded")
	}
}
