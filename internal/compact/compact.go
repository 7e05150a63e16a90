// Package compact ages memory partitions: deduplicates repeated
// content, keeps recent and important events verbatim, and collapses
// the rest into summary events so partitions stay small without losing
// the gist.
package compact

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/ndjson"
)

// Tier classifies events by age.
type Tier string

const (
	TierHot  Tier = "hot"  // kept verbatim
	TierWarm Tier = "warm" // kept if important, else summarized
	TierCold Tier = "cold" // always summarized
)

const (
	hotDays  = 7
	warmDays = 30

	sampleLen = 200
	topTags   = 5
)

// Stats reports what one compaction pass did.
type Stats struct {
	Before     int `json:"before"`
	After      int `json:"after"`
	Deduped    int `json:"deduped"`
	Summarized int `json:"summarized"`
	Summaries  int `json:"summaries"`
}

// Worker compacts partition files. The clock is injectable for tests.
type Worker struct {
	now    func() time.Time
	logger *log.Logger
}

// NewWorker returns a worker using the wall clock.
func NewWorker() *Worker {
	return NewWorkerWithClock(func() time.Time { return time.Now().UTC() })
}

// NewWorkerWithClock returns a worker with an explicit clock.
func NewWorkerWithClock(now func() time.Time) *Worker {
	return &Worker{now: now, logger: log.Default()}
}

// TierOf classifies an event by its age at the worker's clock.
func (w *Worker) TierOf(createdAt time.Time) Tier {
	age := w.now().Sub(createdAt).Hours() / 24.0
	switch {
	case age <= hotDays:
		return TierHot
	case age <= warmDays:
		return TierWarm
	default:
		return TierCold
	}
}

// CompactFile rewrites one partition: classify events into tiers,
// dedupe within each tier, keep hot events and important warm events,
// and summarize everything else. The whole load-classify-rewrite cycle
// runs under the partition's file lock so concurrent appends are never
// lost, and the rewrite itself is atomic. A missing file is a no-op.
func (w *Worker) CompactFile(path string) (*Stats, error) {
	stats := &Stats{}
	err := ndjson.Rewrite(path, func(events []*model.MemoryEvent) []*model.MemoryEvent {
		stats.Before = len(events)

		tiers := map[Tier][]*model.MemoryEvent{}
		for _, e := range events {
			tier := w.TierOf(e.CreatedAt)
			tiers[tier] = append(tiers[tier], e)
		}

		var kept []*model.MemoryEvent
		for _, tier := range []Tier{TierHot, TierWarm, TierCold} {
			bucket, deduped := dedupe(tiers[tier])
			stats.Deduped += deduped

			switch tier {
			case TierHot:
				kept = append(kept, bucket...)
			case TierWarm:
				groups := map[string][]*model.MemoryEvent{}
				for _, e := range bucket {
					if isImportant(e) || e.HasTag("summary") {
						kept = append(kept, e)
					} else {
						key := warmGroupKey(e)
						groups[key] = append(groups[key], e)
					}
				}
				kept = append(kept, summarizeGroups(groups, stats)...)
			case TierCold:
				groups := map[string][]*model.MemoryEvent{}
				for _, e := range bucket {
					if e.HasTag("summary") {
						kept = append(kept, e)
					} else {
						key := e.CreatedAt.Format("2006-01")
						groups[key] = append(groups[key], e)
					}
				}
				kept = append(kept, summarizeGroups(groups, stats)...)
			}
		}

		sort.Slice(kept, func(i, j int) bool {
			return kept[i].CreatedAt.Before(kept[j].CreatedAt)
		})
		stats.After = len(kept)
		return kept
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", path, err)
	}
	if stats.Before > 0 {
		w.logger.Info("compacted partition", "path", path,
			"before", stats.Before, "after", stats.After,
			"deduped", stats.Deduped, "summarized", stats.Summarized)
	}
	return stats, nil
}

// summarizeGroups folds each group into one summary event.
func summarizeGroups(groups map[string][]*model.MemoryEvent, stats *Stats) []*model.MemoryEvent {
	var out []*model.MemoryEvent
	for key, group := range groups {
		out = append(out, summarize(key, group))
		stats.Summarized += len(group)
		stats.Summaries++
	}
	return out
}

// SessionSummary aggregates a whole session partition before it is
// compacted.
type SessionSummary struct {
	Events   int            `json:"events"`
	Outcomes map[string]int `json:"outcomes"`
	ByTool   map[string]int `json:"by_tool"`
	ByType   map[string]int `json:"by_type"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Stats    *Stats         `json:"compaction"`
}

// CompactSession summarizes one session partition and then compacts it.
func (w *Worker) CompactSession(path string) (*SessionSummary, error) {
	events := ndjson.Load(path)
	summary := &SessionSummary{
		Events:   len(events),
		Outcomes: map[string]int{},
		ByTool:   map[string]int{},
		ByType:   map[string]int{},
	}
	for _, e := range events {
		if o := e.MetaString("outcome"); o != "" {
			summary.Outcomes[o]++
		}
		if tool := e.MetaString("tool_name"); tool != "" {
			summary.ByTool[tool]++
		}
		summary.ByType[string(e.MemoryType)]++
		if summary.From.IsZero() || e.CreatedAt.Before(summary.From) {
			summary.From = e.CreatedAt
		}
		if e.CreatedAt.After(summary.To) {
			summary.To = e.CreatedAt
		}
	}

	stats, err := w.CompactFile(path)
	if err != nil {
		return nil, err
	}
	summary.Stats = stats
	return summary, nil
}

// CompactAll runs CompactFile over each path and aggregates the stats.
func (w *Worker) CompactAll(paths []string) (*Stats, error) {
	total := &Stats{}
	for _, path := range paths {
		s, err := w.CompactFile(path)
		if err != nil {
			return total, err
		}
		total.Before += s.Before
		total.After += s.After
		total.Deduped += s.Deduped
		total.Summarized += s.Summarized
		total.Summaries += s.Summaries
	}
	return total, nil
}

// dedupe collapses events with identical normalized content, keeping
// the copy with the highest importance and breaking ties by recency.
func dedupe(events []*model.MemoryEvent) ([]*model.MemoryEvent, int) {
	best := map[string]*model.MemoryEvent{}
	var order []string
	for _, e := range events {
		key := normalize(e.Content)
		cur, ok := best[key]
		if !ok {
			best[key] = e
			order = append(order, key)
			continue
		}
		if e.ImportanceScore() > cur.ImportanceScore() ||
			(e.ImportanceScore() == cur.ImportanceScore() && e.CreatedAt.After(cur.CreatedAt)) {
			best[key] = e
		}
	}
	out := make([]*model.MemoryEvent, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out, len(events) - len(out)
}

func normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// isImportant decides which warm events survive verbatim: high score,
// explicit marker tags, or inherently durable types.
func isImportant(e *model.MemoryEvent) bool {
	if e.ImportanceScore() >= 0.8 {
		return true
	}
	for _, tag := range []string{"important", "remember", "critical", "core"} {
		if e.HasTag(tag) {
			return true
		}
	}
	switch e.MemoryType {
	case model.TypePreference, model.TypeDecision, model.TypeError:
		return true
	}
	return false
}

// warmGroupKey groups warm events by tool when known, else by type.
func warmGroupKey(e *model.MemoryEvent) string {
	if tool := e.MetaString("tool_name"); tool != "" {
		return "tool:" + tool
	}
	return "type:" + string(e.MemoryType)
}

// summarize folds a group into one observation-type summary event. The
// summary stays a regular event so compacted partitions remain plain
// event streams.
func summarize(key string, group []*model.MemoryEvent) *model.MemoryEvent {
	sort.Slice(group, func(i, j int) bool {
		return group[i].CreatedAt.Before(group[j].CreatedAt)
	})
	first, last := group[0], group[len(group)-1]

	outcomes := map[string]int{}
	tagCounts := map[string]int{}
	var importanceSum float64
	for _, e := range group {
		if o := e.MetaString("outcome"); o != "" {
			outcomes[o]++
		}
		for _, tag := range e.Tags {
			tagCounts[tag]++
		}
		importanceSum += e.ImportanceScore()
	}

	sample := last.Content
	if len(sample) > sampleLen {
		cut := sampleLen
		for cut > 0 && !utf8.RuneStart(sample[cut]) {
			cut--
		}
		sample = sample[:cut] + "…"
	}

	content := fmt.Sprintf("%d memories (%s), %s to %s. Latest: %s",
		len(group), key,
		first.CreatedAt.Format("2006-01-02"), last.CreatedAt.Format("2006-01-02"),
		sample)

	s := &model.MemoryEvent{
		Content:     content,
		MemoryType:  model.TypeObservation,
		Scope:       first.Scope,
		SourceAgent: model.AgentSystem,
		Confidence:  1.0,
		Tags:        []string{"summary"},
		Metadata: map[string]any{
			"summary_of":       len(group),
			"group":            key,
			"from":             first.CreatedAt.Format(time.RFC3339),
			"to":               last.CreatedAt.Format(time.RFC3339),
			"outcomes":         outcomes,
			"top_tags":         topN(tagCounts, topTags),
			"importance_score": importanceSum / float64(len(group)),
		},
		CreatedAt: last.CreatedAt,
	}
	s.ID = model.NewID()
	return s
}

// topN returns the n most frequent keys, most frequent first.
func topN(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
