package alert

import (
	"context"
	"fmt"

	"github.com/mattn/go-mastodon"
)

// Mastodon posts captions as statuses.
type Mastodon struct {
	client     *mastodon.Client
	visibility string
}

// NewMastodon creates a Mastodon notifier for the account behind token.
func NewMastodon(server, token, visibility string) *Mastodon {
	if visibility == "" {
		visibility = "public"
	}
	return &Mastodon{
		client: mastodon.NewClient(&mastodon.Config{
			Server:      server,
			AccessToken: token,
		}),
		visibility: visibility,
	}
}

func (m *Mastodon) Name() string { return "mastodon" }

func (m *Mastodon) Send(ctx context.Context, n *Notification) error {
	_, err := m.client.PostStatus(ctx, &mastodon.Toot{
		Status:     n.Caption,
		Visibility: m.visibility,
	})
	if err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	return nil
}
