// Package ndjson provides the append-only newline-delimited JSON file
// primitives shared by the broker and the compaction worker: locked
// appends, tolerant loading, and atomic rewrites.
//
// Locking discipline: a process-local mutex (one per path) serializes
// writers within the process; a gofrs/flock advisory lock serializes
// writers across processes. Platforms without advisory locks degrade to
// the mutex only, a documented weaker guarantee. Reads take no lock:
// lines are immutable once the append lock is released, so a racing
// reader may miss the newest line but never sees a partial one.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"github.com/rcliao/membroker/internal/model"
)

var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

// lockFor returns the process-local mutex guarding path.
func lockFor(path string) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	mu, ok := locks[path]
	if !ok {
		mu = &sync.Mutex{}
		locks[path] = mu
	}
	return mu
}

// withFileLock runs fn while holding both the process-local mutex and a
// best-effort OS advisory lock on path.
func withFileLock(path string, fn func() error) error {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err == nil {
		defer fl.Unlock()
	} else {
		// Advisory locking unavailable on this platform: proceed with
		// the weaker in-process guarantee.
		log.Debug("advisory lock unavailable", "path", path, "err", err)
	}
	return fn()
}

// Append serializes the event as one JSON line and appends it to path,
// creating parent directories as needed. The write is flushed to disk
// before the lock is released so concurrent appenders never interleave
// partial lines.
func Append(path string, e *model.MemoryEvent) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	return withFileLock(path, func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append to %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", path, err)
		}
		return nil
	})
}

// Load reads all parseable events from path. A missing file yields no
// events; malformed lines are skipped so one corrupt record never makes
// a whole partition unreadable.
func Load(path string) []*model.MemoryEvent {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []*model.MemoryEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e model.MemoryEvent
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
			log.Debug("skipping malformed line", "path", path, "err", err)
			continue
		}
		events = append(events, &e)
	}
	return events
}

// Filter rewrites path keeping only events that pass keep, preserving
// unparseable lines verbatim to avoid data loss. The rewrite goes
// through a temp file and an atomic rename, under the same locks as
// Append, so a crash never leaves a truncated partition. Returns the
// number of removed events.
func Filter(path string, keep func(*model.MemoryEvent) bool) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}

	removed := 0
	err := withFileLock(path, func() error {
		in, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer in.Close()

		tmp := path + ".rewriting"
		out, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create %s: %w", tmp, err)
		}
		defer os.Remove(tmp)

		w := bufio.NewWriter(out)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var e model.MemoryEvent
			if err := json.Unmarshal(line, &e); err == nil && e.ID != "" {
				if !keep(&e) {
					removed++
					continue
				}
			}
			w.Write(line)
			w.WriteByte('\n')
		}
		if err := sc.Err(); err != nil {
			out.Close()
			return fmt.Errorf("scan %s: %w", path, err)
		}
		if err := w.Flush(); err != nil {
			out.Close()
			return fmt.Errorf("flush %s: %w", tmp, err)
		}
		if err := out.Sync(); err != nil {
			out.Close()
			return fmt.Errorf("sync %s: %w", tmp, err)
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Rewrite atomically replaces path with transform applied to its
// current events, holding the file lock across the whole
// read-transform-write cycle so concurrent appenders cannot slip an
// event into the gap between load and rename. Unparseable lines are
// carried over verbatim ahead of the transformed events. A missing
// file is a no-op and transform is not called.
func Rewrite(path string, transform func([]*model.MemoryEvent) []*model.MemoryEvent) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	return withFileLock(path, func() error {
		in, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}

		var events []*model.MemoryEvent
		var malformed [][]byte
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var e model.MemoryEvent
			if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
				malformed = append(malformed, append([]byte(nil), line...))
				continue
			}
			events = append(events, &e)
		}
		if err := sc.Err(); err != nil {
			in.Close()
			return fmt.Errorf("scan %s: %w", path, err)
		}
		in.Close()

		out := transform(events)

		tmp := path + ".rewriting"
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create %s: %w", tmp, err)
		}
		defer os.Remove(tmp)

		w := bufio.NewWriter(f)
		for _, line := range malformed {
			w.Write(line)
			w.WriteByte('\n')
		}
		for _, e := range out {
			line, err := json.Marshal(e)
			if err != nil {
				f.Close()
				return fmt.Errorf("marshal event %s: %w", e.ID, err)
			}
			w.Write(line)
			w.WriteByte('\n')
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("flush %s: %w", tmp, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("sync %s: %w", tmp, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	})
}

