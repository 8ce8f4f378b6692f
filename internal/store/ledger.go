package store

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/rewatch/pkg/ledger"
	"github.com/jmoiron/sqlx"
)

// Ledger returns a duplicate-suppression ledger backed by the delivered
// table of this database. It writes through, so Save is a no-op.
func (s *SQLiteStore) Ledger() ledger.Ledger {
	return &sqliteLedger{db: s.db}
}

type sqliteLedger struct {
	db *sqlx.DB
}

func (l *sqliteLedger) AlreadyDelivered(ctx context.Context, id string) (bool, error) {
	var n int
	if err := l.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM delivered WHERE event_id = ?", id); err != nil {
		return false, fmt.Errorf("check delivered %s: %w", id, err)
	}
	return n > 0, nil
}

func (l *sqliteLedger) MarkDelivered(ctx context.Context, id string, now time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO delivered (event_id, delivered_at) VALUES (?, ?)
		ON CONFLICT(event_id) DO UPDATE SET delivered_at = excluded.delivered_at
	`, id, ledger.FormatTime(now))
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", id, err)
	}
	return nil
}

func (l *sqliteLedger) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	entries, err := l.raw(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-retention)
	removed := 0
	for id, ts := range entries {
		when, err := ledger.ParseTime(ts)
		if err == nil && !when.Before(cutoff) {
			continue
		}
		if _, err := l.db.ExecContext(ctx, "DELETE FROM delivered WHERE event_id = ?", id); err != nil {
			return removed, fmt.Errorf("prune delivered %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

func (l *sqliteLedger) Save(context.Context) error { return nil }

func (l *sqliteLedger) Entries(ctx context.Context) (map[string]time.Time, error) {
	entries, err := l.raw(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(entries))
	for id, ts := range entries {
		if when, err := ledger.ParseTime(ts); err == nil {
			out[id] = when
		}
	}
	return out, nil
}

func (l *sqliteLedger) raw(ctx context.Context) (map[string]string, error) {
	rows, err := l.db.QueryxContext(ctx, "SELECT event_id, delivered_at FROM delivered")
	if err != nil {
		return nil, fmt.Errorf("list delivered: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, ts string
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		out[id] = ts
	}
	return out, rows.Err()
}
