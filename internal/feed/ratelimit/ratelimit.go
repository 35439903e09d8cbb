package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"pricesync/internal/feed"
)

// Feed wraps a feed.Feed and gates every outbound call through a token
// bucket. Callers wait for a token or return early when ctx is canceled.
type Feed struct {
	F       feed.Feed
	Limiter *rate.Limiter
}

var _ feed.Feed = (*Feed)(nil)

// PerMinute builds a limiter allowing rpm calls per minute with the given
// burst. A non-positive rpm disables limiting.
func PerMinute(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// MinInterval builds a limiter enforcing at least d between calls.
func MinInterval(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Wrap returns f unchanged when l is nil.
func Wrap(f feed.Feed, l *rate.Limiter) feed.Feed {
	if l == nil {
		return f
	}
	return &Feed{F: f, Limiter: l}
}

func (r *Feed) Name() string { return r.F.Name() }

func (r *Feed) FetchCurrentPrice(ctx context.Context) (*feed.Snapshot, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.F.FetchCurrentPrice(ctx)
}

func (r *Feed) FetchHistorySeries(ctx context.Context) ([]feed.PricePoint, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.F.FetchHistorySeries(ctx)
}

func (r *Feed) wait(ctx context.Context) error {
	if r.Limiter == nil {
		return nil
	}
	return r.Limiter.Wait(ctx)
}
