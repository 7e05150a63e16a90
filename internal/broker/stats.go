package broker

import (
	"context"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/ndjson"
)

// Stats summarize what the broker can currently see.
type Stats struct {
	Total         int                 `json:"total"`
	ByScope       map[model.Scope]int `json:"by_scope"`
	ByType        map[model.Type]int  `json:"by_type"`
	ByAgent       map[model.Agent]int `json:"by_agent"`
	AvgImportance float64             `json:"avg_importance"`
	Sessions      int                 `json:"sessions"`
	Semantic      bool                `json:"semantic"`
}

// Stats aggregates counts over the visible partitions, plus the number
// of session partitions on disk.
func (b *Broker) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		ByScope:  map[model.Scope]int{},
		ByType:   map[model.Type]int{},
		ByAgent:  map[model.Agent]int{},
		Semantic: b.semantic != nil,
	}

	var importanceSum float64
	for _, path := range b.visibleFiles() {
		for _, e := range ndjson.Load(path) {
			s.Total++
			s.ByScope[e.Scope]++
			s.ByType[e.MemoryType]++
			s.ByAgent[e.SourceAgent]++
			importanceSum += e.ImportanceScore()
		}
	}
	if s.Total > 0 {
		s.AvgImportance = importanceSum / float64(s.Total)
	}

	for _, path := range b.allFiles() {
		if path != b.projectFile() && path != b.globalFile() {
			s.Sessions++
		}
	}
	return s, nil
}
