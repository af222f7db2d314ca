// Package ratelimit provides token-bucket admission control for provider
// calls during batch generation.
package ratelimit

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket. Execute acquires one token (waiting FIFO if
// none is available) before invoking the function, and releases nothing:
// tokens replenish on a timer, not on completion, so slow calls do not
// starve the bucket.
type Limiter struct {
	bucket *rate.Limiter
	burst  int
}

// New creates a Limiter refilling at refillPerSec tokens per second with the
// given burst capacity.
func New(refillPerSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = float64(burst)
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(refillPerSec), burst),
		burst:  burst,
	}
}

// Burst returns the bucket's burst capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// Execute acquires one token, then invokes fn.
func (l *Limiter) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return eris.Wrap(err, "ratelimit: acquire token")
	}
	return fn(ctx)
}

// ExecuteVal is Execute preserving a return value.
func ExecuteVal[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := l.bucket.Wait(ctx); err != nil {
		var zero T
		return zero, eris.Wrap(err, "ratelimit: acquire token")
	}
	return fn(ctx)
}
