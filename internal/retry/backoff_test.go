package retry

import (
	"testing"
	"time"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

func TestExponentialBackoff_DefaultValues(t *testing.T) {
	strategy := NewExponentialBackoff()

	if strategy.InitialDelay() != tablekit.DefaultRetryInitialDelay {
		t.Errorf("Expected InitialDelay=%v, got %v", tablekit.DefaultRetryInitialDelay, strategy.InitialDelay())
	}
	if strategy.MaxDelay() != tablekit.DefaultRetryMaxDelay {
		t.Errorf("Expected MaxDelay=%v, got %v", tablekit.DefaultRetryMaxDelay, strategy.MaxDelay())
	}
	if strategy.Multiplier() != 2.0 {
		t.Errorf("Expected Multiplier=2.0, got %v", strategy.Multiplier())
	}
	if strategy.Jitter() != 0.1 {
		t.Errorf("Expected Jitter=0.1, got %v", strategy.Jitter())
	}

	slow := NewSlowBackoff()
	if slow.InitialDelay() != tablekit.DefaultSlowRetryInitialDelay || slow.MaxDelay() != tablekit.DefaultSlowRetryMaxDelay {
		t.Errorf("slow backoff = (%v, %v), want (%v, %v)", slow.InitialDelay(), slow.MaxDelay(),
			tablekit.DefaultSlowRetryInitialDelay, tablekit.DefaultSlowRetryMaxDelay)
	}
}

func TestExponentialBackoff_NextDelay_WithoutJitter(t *testing.T) {
	strategy := NewExponentialBackoff(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(30*time.Second),
		WithMultiplier(2.0),
		WithJitter(0),
	)

	tests := []struct {
		attempt       int
		expectedDelay time.Duration
	}{
		{attempt: 0, expectedDelay: 100 * time.Millisecond},
		{attempt: 1, expectedDelay: 200 * time.Millisecond},
		{attempt: 2, expectedDelay: 400 * time.Millisecond},
		{attempt: 3, expectedDelay: 800 * time.Millisecond},
		{attempt: 4, expectedDelay: 1600 * time.Millisecond},
	}

	for _, tt := range tests {
		delay := strategy.NextDelay(tt.attempt)
		if delay != tt.expectedDelay {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, delay, tt.expectedDelay)
		}
	}
}

func TestExponentialBackoff_NextDelay_WithJitter(t *testing.T) {
	tests := []struct {
		random float64
		want   time.Duration
	}{
		{random: 0.0, want: 180 * time.Millisecond},
		{random: 0.5, want: 200 * time.Millisecond},
		{random: 0.75, want: 210 * time.Millisecond},
	}

	for _, tt := range tests {
		strategy := NewExponentialBackoff(
			WithInitialDelay(100*time.Millisecond),
			WithMaxDelay(time.Minute),
			WithJitter(0.1),
			WithJitterFunc(func() float64 { return tt.random }),
		)
		got := strategy.NextDelay(1)
		diff := got - tt.want
		if diff < -time.Microsecond || diff > time.Microsecond {
			t.Errorf("random=%v: NextDelay(1) = %v, want %v", tt.random, got, tt.want)
		}
	}
}

// Jitter must never push a delay above the cap.
func TestExponentialBackoff_JitterNeverExceedsMaxDelay(t *testing.T) {
	strategy := NewExponentialBackoff(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.5),
		WithJitterFunc(func() float64 { return 0.999 }),
	)

	for attempt := 0; attempt <= 100; attempt++ {
		if delay := strategy.NextDelay(attempt); delay > time.Second {
			t.Errorf("NextDelay(%d) = %v exceeds max delay", attempt, delay)
		}
	}
}

func TestExponentialBackoff_MaxDelayCapAtHighAttempts(t *testing.T) {
	strategy := NewExponentialBackoff(
		WithInitialDelay(1*time.Second),
		WithMultiplier(3.0),
		WithMaxDelay(1*time.Minute),
		WithJitter(0),
	)

	// 1s * 3^10 is about 16 hours.
	if delay := strategy.NextDelay(10); delay != time.Minute {
		t.Errorf("Expected delay capped at 1 minute, got %v", delay)
	}
	for attempt := 5; attempt <= 2000; attempt++ {
		if delay := strategy.NextDelay(attempt); delay != time.Minute {
			t.Errorf("Attempt %d: delay %v, want the 1 minute cap", attempt, delay)
			break
		}
	}
}

// The expected delay with uniform jitter never decreases with the attempt number.
func TestExponentialBackoff_ExpectedDelayNonDecreasing(t *testing.T) {
	samples := []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.999}
	mean := func(attempt int) time.Duration {
		var sum time.Duration
		for _, r := range samples {
			strategy := NewExponentialBackoff(
				WithInitialDelay(5*time.Millisecond),
				WithMaxDelay(500*time.Millisecond),
				WithJitter(0.1),
				WithJitterFunc(func() float64 { return r }),
			)
			sum += strategy.NextDelay(attempt)
		}
		return sum / time.Duration(len(samples))
	}

	prev := mean(0)
	for attempt := 1; attempt < 12; attempt++ {
		cur := mean(attempt)
		if cur < prev {
			t.Errorf("expected delay decreased at attempt %d: %v < %v", attempt, cur, prev)
		}
		prev = cur
	}
}

func TestExponentialBackoff_NegativeAttempt(t *testing.T) {
	strategy := NewExponentialBackoff(WithInitialDelay(10*time.Millisecond), WithJitter(0))
	if got := strategy.NextDelay(-3); got != 10*time.Millisecond {
		t.Errorf("NextDelay(-3) = %v, want 10ms", got)
	}
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(7 * time.Millisecond)
	for attempt := 0; attempt < 5; attempt++ {
		if got := b.NextDelay(attempt); got != 7*time.Millisecond {
			t.Errorf("NextDelay(%d) = %v, want 7ms", attempt, got)
		}
	}
}
