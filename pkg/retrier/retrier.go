// Package retrier implements exponential backoff with jitter.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Retrier retries an operation with exponentially growing pauses.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
}

// Option configures the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the initial retry interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval sets the maximum retry interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// New creates a Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do executes fn, retrying on error until the retry budget is exhausted or
// the context is cancelled. The last error is returned.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	interval := r.initialInterval

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
			sleep := time.Duration(float64(interval) + jitter)
			if sleep < 0 {
				sleep = 0
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}

			interval = time.Duration(float64(interval) * r.multiplier)
			if interval > r.maxInterval {
				interval = r.maxInterval
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
	}

	return err
}
