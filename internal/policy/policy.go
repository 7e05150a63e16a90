// Package policy manages the tunable knobs of recall and scoring:
// thresholds, weights, and exclusion rules. Policies live as small JSON
// files under a policy directory so humans can inspect and edit them,
// and so feedback loops can adjust them between sessions.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/membroker/internal/scoring"
)

const (
	recallPolicyFile  = "recall_policy.json"
	scoringPolicyFile = "scoring_policy.json"
	exclusionFile     = "exclusion_rules.ndjson"

	minTopK = 1
	maxTopK = 20
)

// RecallPolicy controls how search results are selected and ranked.
type RecallPolicy struct {
	TopK           int            `json:"top_k"`
	MinScore       float64        `json:"min_score"`
	EnableSemantic bool           `json:"enable_semantic"`
	Boosts         scoring.Boosts `json:"boosts"`
}

// DefaultRecallPolicy returns the stock recall policy.
func DefaultRecallPolicy() RecallPolicy {
	return RecallPolicy{
		TopK:           5,
		MinScore:       0.5,
		EnableSemantic: false,
		Boosts:         scoring.DefaultBoosts(),
	}
}

// ScoringPolicy holds the weight sets the scoring engine runs with.
type ScoringPolicy struct {
	Importance scoring.ImportanceWeights `json:"importance_weights"`
	Recall     scoring.RecallWeights     `json:"recall_weights"`
}

// DefaultScoringPolicy returns the stock scoring weights.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		Importance: scoring.DefaultImportanceWeights(),
		Recall:     scoring.DefaultRecallWeights(),
	}
}

// ExclusionRule suppresses memories whose content matches Pattern.
// Pattern is a case-insensitive substring, or a regular expression when
// wrapped in slashes ("/ran go test/").
type ExclusionRule struct {
	Pattern   string    `json:"pattern"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Compiled form of a slash-wrapped Pattern, built once when the
	// rule is added or loaded. Nil for substring patterns.
	re *regexp.Regexp
}

// ImportancePatch selectively overrides importance weights. Nil fields
// keep their current value; the result is renormalized to sum to 1.0.
type ImportancePatch struct {
	Outcome       *float64 `json:"outcome,omitempty"`
	Reuse         *float64 `json:"reuse,omitempty"`
	CrossImpact   *float64 `json:"cross_impact,omitempty"`
	Novelty       *float64 `json:"novelty,omitempty"`
	UserSignal    *float64 `json:"user_signal,omitempty"`
	CostReduction *float64 `json:"cost_reduction,omitempty"`
}

// RecallPatch selectively overrides recall weights, renormalized the
// same way.
type RecallPatch struct {
	Importance *float64 `json:"importance,omitempty"`
	Recency    *float64 `json:"recency,omitempty"`
	RoleFit    *float64 `json:"role_fit,omitempty"`
	Outcome    *float64 `json:"outcome,omitempty"`
}

// Manager loads, caches, and persists the policy files under one
// directory. Safe for concurrent use.
type Manager struct {
	dir string

	mu         sync.RWMutex
	recall     RecallPolicy
	scoring    ScoringPolicy
	exclusions []ExclusionRule
}

// NewManager loads existing policy files from dir, falling back to
// defaults for anything missing or unreadable.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create policy dir: %w", err)
	}
	m := &Manager{
		dir:     dir,
		recall:  DefaultRecallPolicy(),
		scoring: DefaultScoringPolicy(),
	}
	m.loadRecall()
	m.loadScoring()
	m.loadExclusions()
	return m, nil
}

func (m *Manager) loadRecall() {
	data, err := os.ReadFile(filepath.Join(m.dir, recallPolicyFile))
	if err != nil {
		return
	}
	var p RecallPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn("recall policy unreadable, using defaults", "err", err)
		return
	}
	if p.TopK < minTopK || p.TopK > maxTopK {
		p.TopK = DefaultRecallPolicy().TopK
	}
	m.recall = p
}

func (m *Manager) loadScoring() {
	data, err := os.ReadFile(filepath.Join(m.dir, scoringPolicyFile))
	if err != nil {
		return
	}
	var p ScoringPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn("scoring policy unreadable, using defaults", "err", err)
		return
	}
	m.scoring = p
}

func (m *Manager) loadExclusions() {
	data, err := os.ReadFile(filepath.Join(m.dir, exclusionFile))
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var r ExclusionRule
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			log.Debug("skipping malformed exclusion rule", "err", err)
			continue
		}
		if isRegexPattern(r.Pattern) {
			re, err := regexp.Compile(regexBody(r.Pattern))
			if err != nil {
				log.Warn("skipping exclusion rule with invalid regex", "pattern", r.Pattern, "err", err)
				continue
			}
			r.re = re
		}
		m.exclusions = append(m.exclusions, r)
	}
}

func (m *Manager) saveJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(m.dir, name), append(data, '\n'), 0o644)
}

func (m *Manager) saveExclusions() error {
	var b strings.Builder
	for _, r := range m.exclusions {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal exclusion rule: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(m.dir, exclusionFile), []byte(b.String()), 0o644)
}

// Recall returns the current recall policy.
func (m *Manager) Recall() RecallPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recall
}

// Scoring returns the current scoring policy.
func (m *Manager) Scoring() ScoringPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scoring
}

// Engine builds a scoring engine from the current policies.
func (m *Manager) Engine() *scoring.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return scoring.NewEngine(m.scoring.Importance, m.scoring.Recall, m.recall.Boosts)
}

// Exclusions returns a copy of the current exclusion rules.
func (m *Manager) Exclusions() []ExclusionRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ExclusionRule(nil), m.exclusions...)
}

// UpdateRecallThreshold sets the minimum recall score, clamped to [0,1].
func (m *Manager) UpdateRecallThreshold(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recall.MinScore = clamp01(v)
	return m.saveJSON(recallPolicyFile, m.recall)
}

// UpdateTopK sets the result limit, clamped to [1,20].
func (m *Manager) UpdateTopK(k int) error {
	if k < minTopK {
		k = minTopK
	}
	if k > maxTopK {
		k = maxTopK
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recall.TopK = k
	return m.saveJSON(recallPolicyFile, m.recall)
}

// SetSemantic toggles semantic search.
func (m *Manager) SetSemantic(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recall.EnableSemantic = on
	return m.saveJSON(recallPolicyFile, m.recall)
}

// PatchImportanceWeights applies the non-nil fields of p and
// renormalizes the result so the weights sum to 1.0.
func (m *Manager) PatchImportanceWeights(p ImportancePatch) (scoring.ImportanceWeights, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.scoring.Importance
	apply(&w.Outcome, p.Outcome)
	apply(&w.Reuse, p.Reuse)
	apply(&w.CrossImpact, p.CrossImpact)
	apply(&w.Novelty, p.Novelty)
	apply(&w.UserSignal, p.UserSignal)
	apply(&w.CostReduction, p.CostReduction)

	total := w.Outcome + w.Reuse + w.CrossImpact + w.Novelty + w.UserSignal + w.CostReduction
	if total <= 0 {
		return m.scoring.Importance, fmt.Errorf("importance weights sum to %v, refusing", total)
	}
	w.Outcome /= total
	w.Reuse /= total
	w.CrossImpact /= total
	w.Novelty /= total
	w.UserSignal /= total
	w.CostReduction /= total

	m.scoring.Importance = w
	return w, m.saveJSON(scoringPolicyFile, m.scoring)
}

// PatchRecallWeights applies the non-nil fields of p and renormalizes.
func (m *Manager) PatchRecallWeights(p RecallPatch) (scoring.RecallWeights, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.scoring.Recall
	apply(&w.Importance, p.Importance)
	apply(&w.Recency, p.Recency)
	apply(&w.RoleFit, p.RoleFit)
	apply(&w.Outcome, p.Outcome)

	total := w.Importance + w.Recency + w.RoleFit + w.Outcome
	if total <= 0 {
		return m.scoring.Recall, fmt.Errorf("recall weights sum to %v, refusing", total)
	}
	w.Importance /= total
	w.Recency /= total
	w.RoleFit /= total
	w.Outcome /= total

	m.scoring.Recall = w
	return w, m.saveJSON(scoringPolicyFile, m.scoring)
}

// AddExclusionRule registers a new pattern. Duplicate patterns are
// replaced rather than accumulated.
func (m *Manager) AddExclusionRule(pattern, reason string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("exclusion pattern cannot be empty")
	}
	var re *regexp.Regexp
	if isRegexPattern(pattern) {
		var err error
		re, err = regexp.Compile(regexBody(pattern))
		if err != nil {
			return fmt.Errorf("invalid exclusion regex %q: %w", pattern, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(pattern)
	m.exclusions = append(m.exclusions, ExclusionRule{
		Pattern:   pattern,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
		re:        re,
	})
	return m.saveExclusions()
}

// RemoveExclusionRule drops the rule with the given pattern. Removing a
// pattern that does not exist is not an error.
func (m *Manager) RemoveExclusionRule(pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(pattern)
	return m.saveExclusions()
}

func (m *Manager) removeLocked(pattern string) {
	kept := m.exclusions[:0]
	for _, r := range m.exclusions {
		if r.Pattern != pattern {
			kept = append(kept, r)
		}
	}
	m.exclusions = kept
}

// IsExcluded reports whether content matches any exclusion rule.
func (m *Manager) IsExcluded(content string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lower := strings.ToLower(content)
	for _, r := range m.exclusions {
		if r.re != nil {
			if r.re.MatchString(content) {
				return true
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return true
		}
	}
	return false
}

// EvaluateContribution adjusts exclusions from observed recall value.
// A pattern whose average contribution stays under 0.2 across at least
// ten samples gets excluded; one that climbs to 0.7 or above gets its
// exclusion lifted. Returns true when anything changed.
func (m *Manager) EvaluateContribution(pattern string, avgScore float64, samples int) (bool, error) {
	if samples < 10 {
		return false, nil
	}
	switch {
	case avgScore < 0.2:
		if m.IsExcluded(pattern) {
			return false, nil
		}
		err := m.AddExclusionRule(pattern, fmt.Sprintf("avg contribution %.2f over %d samples", avgScore, samples))
		return err == nil, err
	case avgScore >= 0.7:
		m.mu.Lock()
		before := len(m.exclusions)
		m.removeLocked(pattern)
		changed := len(m.exclusions) != before
		var err error
		if changed {
			err = m.saveExclusions()
		}
		m.mu.Unlock()
		return changed, err
	}
	return false, nil
}

func isRegexPattern(p string) bool {
	return len(p) > 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/")
}

func regexBody(p string) string {
	return strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
}

func apply(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
