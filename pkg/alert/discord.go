package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	embed := map[string]any{
		"title":       fmt.Sprintf("%s @ %s", n.Away, n.Home),
		"description": n.Caption,
		"color":       scoreColor(n.Score),
		"footer":      map[string]any{"text": fmt.Sprintf("%s · %s · event %s", n.Sport, n.Reason, n.EventID)},
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}
	return postJSON(ctx, d.client, d.webhookURL, payload, nil)
}

// scoreColor shades the embed from grey to gold as the score rises.
func scoreColor(score int) int {
	switch {
	case score >= 95:
		return 0xFFD700
	case score >= 90:
		return 0xFF6600
	case score >= 70:
		return 0x2E86DE
	default:
		return 0x95A5A6
	}
}
