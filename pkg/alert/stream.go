package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream published games are appended to.
const DefaultStream = "rewatch.published"

// Stream appends published games to a Redis stream for downstream consumers.
type Stream struct {
	client *redis.Client
	stream string
}

// NewStream creates a Redis stream notifier.
func NewStream(client *redis.Client, stream string) *Stream {
	if stream == "" {
		stream = DefaultStream
	}
	return &Stream{client: client, stream: stream}
}

func (s *Stream) Name() string { return "redis-stream" }

func (s *Stream) Send(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"data":     string(data),
			"event_id": n.EventID,
			"sport":    n.Sport,
			"score":    strconv.Itoa(n.Score),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
