package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a game is not in the history.
var ErrNotFound = errors.New("not found")

// Game is one scored game as kept in the history table.
type Game struct {
	EventID     string    `db:"event_id" json:"event_id"`
	Sport       string    `db:"sport" json:"sport"`
	GameDate    string    `db:"game_date" json:"game_date"`
	Away        string    `db:"away" json:"away"`
	Home        string    `db:"home" json:"home"`
	Network     string    `db:"network" json:"network,omitempty"`
	WPPoints    int       `db:"wp_points" json:"wp_points"`
	EI          float64   `db:"ei" json:"ei"`
	Score       int       `db:"score" json:"score"`
	Vibe        string    `db:"vibe" json:"vibe"`
	AutoSurface bool      `db:"auto_surface" json:"auto_surface"`
	Delivered   bool      `db:"delivered" json:"delivered"`
	ScoredAt    time.Time `db:"scored_at" json:"scored_at"`
}

// GameListOpts controls game listing.
type GameListOpts struct {
	Sport    string
	Date     string
	MinScore int
	Limit    int
}

// Store is the persistence interface.
type Store interface {
	UpsertGame(ctx context.Context, g *Game) error
	GetGame(ctx context.Context, eventID string) (*Game, error)
	ListGames(ctx context.Context, opts GameListOpts) ([]Game, error)
	CountGamesBySport(ctx context.Context) (map[string]int, error)
	MarkGameDelivered(ctx context.Context, eventID string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps writes from the scorer pool serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertGame records a scoring pass. Re-scoring the same event overwrites
// the numbers but never clears the delivered flag.
func (s *SQLiteStore) UpsertGame(ctx context.Context, g *Game) error {
	if g.ScoredAt.IsZero() {
		g.ScoredAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO games (event_id, sport, game_date, away, home, network, wp_points, ei, score, vibe, auto_surface, delivered, scored_at)
		VALUES (:event_id, :sport, :game_date, :away, :home, :network, :wp_points, :ei, :score, :vibe, :auto_surface, :delivered, :scored_at)
		ON CONFLICT(event_id) DO UPDATE SET
			network = excluded.network,
			wp_points = excluded.wp_points,
			ei = excluded.ei,
			score = excluded.score,
			vibe = excluded.vibe,
			auto_surface = excluded.auto_surface,
			delivered = games.delivered OR excluded.delivered,
			scored_at = excluded.scored_at
	`, g)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", g.EventID, err)
	}
	return nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, eventID string) (*Game, error) {
	var g Game
	err := s.db.GetContext(ctx, &g, "SELECT * FROM games WHERE event_id = ?", eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get game %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", eventID, err)
	}
	return &g, nil
}

func (s *SQLiteStore) ListGames(ctx context.Context, opts GameListOpts) ([]Game, error) {
	query := "SELECT * FROM games WHERE 1=1"
	var args []any

	if opts.Sport != "" {
		query += " AND sport = ?"
		args = append(args, opts.Sport)
	}
	if opts.Date != "" {
		query += " AND game_date = ?"
		args = append(args, opts.Date)
	}
	if opts.MinScore > 0 {
		query += " AND score >= ?"
		args = append(args, opts.MinScore)
	}

	query += " ORDER BY game_date DESC, score DESC, event_id"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var games []Game
	if err := s.db.SelectContext(ctx, &games, query, args...); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (s *SQLiteStore) CountGamesBySport(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT sport, COUNT(*) AS cnt FROM games GROUP BY sport")
	if err != nil {
		return nil, fmt.Errorf("count games by sport: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sp string
		var cnt int
		if err := rows.Scan(&sp, &cnt); err != nil {
			return nil, err
		}
		counts[sp] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) MarkGameDelivered(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE games SET delivered = 1 WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", eventID, err)
	}
	return nil
}
