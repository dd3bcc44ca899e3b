package ai

import (
	"testing"
	"time"
)

func TestTokenCounterRequestLimit(t *testing.T) {
	tc := &TokenCounter{
		limits:          RateLimits{RPM: 2, TPM: 1000, RPD: 100},
		lastMinuteReset: time.Now(),
		lastDayReset:    time.Now(),
	}

	for i := 0; i < 2; i++ {
		if !tc.CanConsume(10, 1) {
			t.Fatalf("request %d should fit under the minute limit", i+1)
		}
		tc.RecordUsage(10, 1)
	}
	if tc.CanConsume(10, 1) {
		t.Error("minute request limit not enforced")
	}
}

func TestTokenCounterTokenLimit(t *testing.T) {
	tc := &TokenCounter{
		limits:          RateLimits{RPM: 100, TPM: 50, RPD: 100},
		lastMinuteReset: time.Now(),
		lastDayReset:    time.Now(),
	}

	tc.RecordUsage(40, 1)
	if tc.CanConsume(20, 1) {
		t.Error("minute token limit not enforced")
	}
	if !tc.CanConsume(10, 1) {
		t.Error("request within the remaining token budget rejected")
	}
}

func TestTokenCounterDailyRequestLimit(t *testing.T) {
	tc := &TokenCounter{
		limits:       RateLimits{RPM: 10, TPM: 1000, RPD: 2},
		lastDayReset: time.Now(),
	}
	tc.RecordUsage(10, 2)

	// a fresh minute window does not reset the daily request count
	tc.lastMinuteReset = time.Now().Add(-2 * time.Minute)
	if tc.CanConsume(10, 1) {
		t.Error("daily request limit not enforced across minute windows")
	}
}
