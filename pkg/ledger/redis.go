package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rewatch:ledger:"

// Redis keeps one key per delivered id. Keys carry the retention as TTL, so
// Redis expires them on its own; Prune only sweeps corrupt or stale values.
type Redis struct {
	client    *redis.Client
	retention time.Duration
}

var _ Ledger = (*Redis)(nil)

// NewRedis creates a Redis-backed ledger.
func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Redis{client: client, retention: retention}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *Redis) AlreadyDelivered(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check ledger key %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Redis) MarkDelivered(ctx context.Context, id string, now time.Time) error {
	if err := r.client.Set(ctx, redisKey(id), FormatTime(now), r.retention).Err(); err != nil {
		return fmt.Errorf("set ledger key %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)
	removed := 0

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("read ledger key %s: %w", key, err)
		}
		if !expired(val, cutoff) {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("delete ledger key %s: %w", key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan ledger: %w", err)
	}
	return removed, nil
}

// Save is a no-op: every MarkDelivered is already durable in Redis.
func (r *Redis) Save(context.Context) error { return nil }

func (r *Redis) Entries(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		when, err := ParseTime(val)
		if err != nil {
			continue
		}
		out[strings.TrimPrefix(key, redisKeyPrefix)] = when
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return out, nil
}
