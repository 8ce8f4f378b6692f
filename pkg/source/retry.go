package source

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/rewatch/pkg/sport"
)

// RetryPolicy retries a call with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy waits 5s, 10s, 20s between four attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Delay: 5 * time.Second, MaxDelay: 30 * time.Second}
}

// Do runs fn until it succeeds, the attempts run out, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Delay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// RetryingFetcher wraps a SeriesFetcher and retries while the series is
// missing or the request fails. Win probability tends to publish a few
// seconds to minutes after the final whistle.
type RetryingFetcher struct {
	next   SeriesFetcher
	policy RetryPolicy
}

// NewRetryingFetcher wraps next with the given policy.
func NewRetryingFetcher(next SeriesFetcher, policy RetryPolicy) *RetryingFetcher {
	return &RetryingFetcher{next: next, policy: policy}
}

func (r *RetryingFetcher) FetchSeries(ctx context.Context, s sport.Sport, eventID string) ([]any, error) {
	var series []any
	err := r.policy.Do(ctx, func(int) error {
		raw, err := r.next.FetchSeries(ctx, s, eventID)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return ErrNoSeries
		}
		series = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}
