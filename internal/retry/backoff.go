package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// ExponentialBackoff implements exponential backoff with jitter, capped at maxDelay.
type ExponentialBackoff struct {
	// initialDelay is the delay before the first retry
	initialDelay time.Duration

	// maxDelay caps every delay, jitter included
	maxDelay time.Duration

	// multiplier is the factor by which delay increases (typically 2.0)
	multiplier float64

	// jitter of 0.1 means +/- 10% randomness
	jitter float64

	// jitterFunc provides random values [0, 1) (defaults to rand.Float64)
	jitterFunc func() float64
}

var _ tablekit.BackoffStrategy = (*ExponentialBackoff)(nil)

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.initialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between attempts.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.maxDelay = d
	}
}

// WithMultiplier sets the factor by which delay increases between attempts.
func WithMultiplier(m float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.multiplier = m
	}
}

// WithJitter sets the jitter factor (0.0-1.0).
func WithJitter(j float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = j
	}
}

// WithJitterFunc sets a custom source of random values in [0, 1).
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitterFunc = f
	}
}

// NewExponentialBackoff creates the fast backoff used for most retryable
// failures. Options override the defaults.
//
// Example:
//
//	slow := retry.NewExponentialBackoff(
//	    retry.WithInitialDelay(time.Second),
//	    retry.WithMaxDelay(time.Minute),
//	)
func NewExponentialBackoff(opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: tablekit.DefaultRetryInitialDelay,
		maxDelay:     tablekit.DefaultRetryMaxDelay,
		multiplier:   2.0,
		jitter:       tablekit.DefaultRetryJitter,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewSlowBackoff creates the backoff used after overload failures.
func NewSlowBackoff(opts ...BackoffOption) *ExponentialBackoff {
	base := []BackoffOption{
		WithInitialDelay(tablekit.DefaultSlowRetryInitialDelay),
		WithMaxDelay(tablekit.DefaultSlowRetryMaxDelay),
	}
	return NewExponentialBackoff(append(base, opts...)...)
}

// NextDelay returns initialDelay * multiplier^attempt with jitter applied,
// never more than maxDelay.
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	maxDelay := float64(b.maxDelay)
	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if delay > maxDelay || math.IsInf(delay, 1) {
		delay = maxDelay
	}

	if b.jitter > 0 {
		jitterFunc := b.jitterFunc
		if jitterFunc == nil {
			jitterFunc = rand.Float64
		}
		// Map [0,1) to [-1,1): jitter=0.1, random=0.7 => delay * 1.04
		randomOffset := (jitterFunc() - 0.5) * 2.0
		delay *= 1.0 + b.jitter*randomOffset
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// InitialDelay returns the initial delay for tests and debugging.
func (b *ExponentialBackoff) InitialDelay() time.Duration {
	return b.initialDelay
}

// MaxDelay returns the maximum delay for tests and debugging.
func (b *ExponentialBackoff) MaxDelay() time.Duration {
	return b.maxDelay
}

// Multiplier returns the backoff multiplier for tests and debugging.
func (b *ExponentialBackoff) Multiplier() float64 {
	return b.multiplier
}

// Jitter returns the jitter factor for tests and debugging.
func (b *ExponentialBackoff) Jitter() float64 {
	return b.jitter
}

// ConstantBackoff waits the same delay before every retry.
type ConstantBackoff time.Duration

func (c ConstantBackoff) NextDelay(int) time.Duration {
	return time.Duration(c)
}
