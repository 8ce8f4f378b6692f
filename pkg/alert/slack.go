package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": "```" + n.Caption + "```",
			},
		},
		{
			"type": "context",
			"elements": []map[string]any{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s* · %s · EI %.3f · event %s", n.Sport, n.Reason, n.EI, n.EventID),
				},
			},
		},
	}

	payload := map[string]any{
		"text":   fmt.Sprintf("%s @ %s: %d", n.Away, n.Home, n.Score),
		"blocks": blocks,
	}
	return postJSON(ctx, s.client, s.webhookURL, payload, nil)
}
