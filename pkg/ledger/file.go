package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File is a ledger persisted as a flat JSON object of id -> ISO-8601 time.
// Writes are serialized and Save replaces the file atomically.
type File struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
	dirty   bool
}

var _ Ledger = (*File)(nil)

// OpenFile loads the ledger at path. A missing file yields an empty ledger.
// An unreadable or corrupt file also yields an empty, usable ledger, and the
// cause is returned alongside it so the caller can log it.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read ledger %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return f, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	for id, v := range raw {
		// Non-string values are kept as corrupt entries for Prune to drop.
		s, _ := v.(string)
		f.entries[id] = s
	}
	return f, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) AlreadyDelivered(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[id]
	return ok, nil
}

func (f *File) MarkDelivered(_ context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = FormatTime(now)
	f.dirty = true
	return nil
}

func (f *File) Prune(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := now.Add(-retention)
	removed := 0
	for id, ts := range f.entries {
		if expired(ts, cutoff) {
			delete(f.entries, id)
			removed++
		}
	}
	if removed > 0 {
		f.dirty = true
	}
	return removed, nil
}

// Save writes the ledger to a temp file in the same directory and renames it
// over the old one, so readers never see a partial write.
func (f *File) Save(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		if _, err := os.Stat(f.path); err == nil {
			return nil
		}
	}

	data, err := json.Marshal(f.entries)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace ledger %s: %w", f.path, err)
	}

	f.dirty = false
	return nil
}

func (f *File) Entries(_ context.Context) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]time.Time, len(f.entries))
	for id, ts := range f.entries {
		when, err := ParseTime(ts)
		if err != nil {
			continue
		}
		out[id] = when
	}
	return out, nil
}

// Len returns the number of entries, corrupt ones included.
func (f *File) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
