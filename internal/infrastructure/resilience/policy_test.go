package resilience

import (
	"testing"
	"time"
)

func TestNormalizeFillsZeroFields(t *testing.T) {
	got := Config{}.normalize()
	def := DefaultConfig()

	if got.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("attempts = %d, want %d", got.RetryMaxAttempts, def.RetryMaxAttempts)
	}
	if got.RetryInitialBackoff != def.RetryInitialBackoff {
		t.Fatalf("initial backoff = %v", got.RetryInitialBackoff)
	}
	if got.BreakerMinRequests != def.BreakerMinRequests {
		t.Fatalf("min requests = %d", got.BreakerMinRequests)
	}
}

func TestNormalizeKeepsBackoffOrdered(t *testing.T) {
	got := Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 500 * time.Millisecond,
		RetryMaxBackoff:     100 * time.Millisecond,
		RetryMultiplier:     2,
	}.normalize()

	if got.RetryMaxBackoff < got.RetryInitialBackoff {
		t.Fatalf("max backoff %v below initial %v", got.RetryMaxBackoff, got.RetryInitialBackoff)
	}
}

func TestNormalizeRejectsBadFailureRatio(t *testing.T) {
	got := Config{BreakerFailureRatio: 1.5}.normalize()
	if got.BreakerFailureRatio != DefaultConfig().BreakerFailureRatio {
		t.Fatalf("failure ratio = %v", got.BreakerFailureRatio)
	}
}
