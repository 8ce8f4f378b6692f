// Package ledger remembers which events have already been delivered so a
// polling loop can run any number of times without posting a game twice.
package ledger

import (
	"context"
	"time"
)

// DefaultRetention is how long a delivered id stays suppressed.
const DefaultRetention = 7 * 24 * time.Hour

// Ledger is the duplicate-suppression store. Once MarkDelivered records an
// id, AlreadyDelivered reports true for it until Prune drops the entry.
type Ledger interface {
	AlreadyDelivered(ctx context.Context, id string) (bool, error)
	MarkDelivered(ctx context.Context, id string, now time.Time) error
	// Prune removes entries older than retention and entries whose
	// timestamp cannot be parsed. It returns the number removed.
	Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error)
	// Save persists pending changes. Backends that write through return nil.
	Save(ctx context.Context) error
	// Entries lists delivered ids with their delivery time.
	Entries(ctx context.Context) (map[string]time.Time, error)
}

// timestampLayout is the ISO-8601 form ids are stored with.
const timestampLayout = time.RFC3339Nano

// FormatTime renders a delivery timestamp for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTime reads a stored delivery timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// expired reports whether a stored timestamp should be pruned.
func expired(raw string, cutoff time.Time) bool {
	when, err := ParseTime(raw)
	if err != nil {
		return true
	}
	return when.Before(cutoff)
}
