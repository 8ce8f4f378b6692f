// Package source talks to the outside world that knows about games: which
// events were played on a date, and how each one's win probability moved.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/elonfeng/rewatch/pkg/sport"
)

// ErrNoSeries means the win-probability series has not been published yet.
// Callers treat it as "try again later", never as a dull game.
var ErrNoSeries = errors.New("win probability not published")

// GameEvent is one contest on a league's schedule for a date.
type GameEvent struct {
	ID        string      `json:"id"`
	Sport     sport.Sport `json:"sport"`
	Date      string      `json:"date"` // game day, YYYY-MM-DD
	StartTime time.Time   `json:"start_time"`
	Away      string      `json:"away"`
	Home      string      `json:"home"`
	AwayScore int         `json:"away_score"`
	HomeScore int         `json:"home_score"`
	Final     bool        `json:"final"`
	// Broadcast is the national network, or empty when the game is only
	// carried locally or on streaming.
	Broadcast string `json:"broadcast,omitempty"`
}

// EventLister lists the schedule for one sport and game day.
type EventLister interface {
	ListEvents(ctx context.Context, s sport.Sport, day time.Time) ([]GameEvent, error)
}

// SeriesFetcher returns the raw home win-probability samples of an event, in
// time order. Samples are left unnormalized.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, s sport.Sport, eventID string) ([]any, error)
}

// DayLayout is the date format used for game days.
const DayLayout = "2006-01-02"
