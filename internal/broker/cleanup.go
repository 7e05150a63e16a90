package broker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/ndjson"
)

// CleanupExpired removes events whose TTL has elapsed from every
// partition, including other sessions'. Events without a TTL are kept
// forever. Returns the number of removed events.
func (b *Broker) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	total := 0
	for _, path := range b.allFiles() {
		removed, err := ndjson.Filter(path, func(e *model.MemoryEvent) bool {
			return !expired(e, now)
		})
		if err != nil {
			return total, err
		}
		total += removed
	}
	if total > 0 {
		b.logger.Info("cleaned up expired memories", "removed", total)
	}
	return total, nil
}

// expired reports whether the event's TTL has elapsed.
func expired(e *model.MemoryEvent, now time.Time) bool {
	if e.TTLDays == nil || *e.TTLDays <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > time.Duration(*e.TTLDays)*24*time.Hour
}

// PartitionFiles lists every partition on disk, for maintenance passes
// like compaction.
func (b *Broker) PartitionFiles() []string {
	return b.allFiles()
}

// SessionPartition returns the partition path for one session id.
func (b *Broker) SessionPartition(sessionID string) string {
	return b.sessionFile(sessionID)
}

// allFiles lists every partition on disk, session files included.
// Maintenance passes use this; searches never do.
func (b *Broker) allFiles() []string {
	files := []string{b.projectFile(), b.globalFile()}
	entries, err := os.ReadDir(filepath.Join(b.baseDir, "sessions"))
	if err != nil {
		return files
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "session-") && strings.HasSuffix(name, ".ndjson") {
			files = append(files, filepath.Join(b.baseDir, "sessions", name))
		}
	}
	return files
}
