package alert

import (
	"context"
	"errors"
	"fmt"
)

// Reason says why a game is being published.
type Reason string

const (
	ReasonAuto     Reason = "auto"     // met the posting rule on its own
	ReasonFallback Reason = "fallback" // best of a night where nothing qualified
)

// Notification is the data sent to publish destinations.
type Notification struct {
	Reason  Reason  `json:"reason"`
	EventID string  `json:"event_id"`
	Sport   string  `json:"sport"`
	Date    string  `json:"date"`
	Away    string  `json:"away"`
	Home    string  `json:"home"`
	Network string  `json:"network,omitempty"`
	Score   int     `json:"score"`
	Vibe    string  `json:"vibe"`
	EI      float64 `json:"ei"`
	// Excitement is inpredictable's published figure, when known.
	Excitement *float64 `json:"excitement,omitempty"`
	Caption    string   `json:"caption"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Names lists the configured notifiers.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Broadcast sends a notification to every notifier. It returns how many
// accepted it along with the joined errors of those that did not. A game
// counts as published once any destination accepted it.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) (int, error) {
	if len(m.notifiers) == 0 {
		return 0, errors.New("no notifiers configured")
	}

	var errs []error
	sent := 0
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
