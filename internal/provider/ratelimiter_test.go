package provider

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimiterDeniesAfterLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(24*time.Hour, clock.Now)

	for i := 0; i < 5; i++ {
		if !limiter.CanCall("alphavantage", 5) {
			t.Fatalf("call %d should be allowed", i+1)
		}
		limiter.RecordCall("alphavantage")
	}
	if limiter.CanCall("alphavantage", 5) {
		t.Fatal("sixth call should be denied")
	}

	clock.Advance(23 * time.Hour)
	if limiter.CanCall("alphavantage", 5) {
		t.Fatal("window has not rolled over yet")
	}

	clock.Advance(time.Hour)
	if !limiter.CanCall("alphavantage", 5) {
		t.Fatal("expected call allowed after window rollover")
	}
}

func TestRateLimiterProvidersAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(0, nil)
	limiter.RecordCall("alphavantage")
	if limiter.CanCall("alphavantage", 1) {
		t.Fatal("alphavantage should be exhausted")
	}
	if !limiter.CanCall("fmp", 1) {
		t.Fatal("fmp should be unaffected")
	}
}

func TestRateLimiterRecordWithoutCheck(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(time.Hour, clock.Now)

	limiter.RecordCall("fmp")
	limiter.RecordCall("fmp")
	usage := limiter.Usage()
	if len(usage) != 1 || usage[0].Calls != 2 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if !usage[0].ResetsAt.Equal(clock.now.Add(time.Hour)) {
		t.Fatalf("unexpected reset time: %v", usage[0].ResetsAt)
	}
}

func TestRateLimiterUsageResetsLazily(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(time.Hour, clock.Now)

	limiter.CanCall("alphavantage", 25)
	limiter.RecordCall("alphavantage")
	clock.Advance(2 * time.Hour)

	usage := limiter.Usage()
	if usage[0].Calls != 0 || usage[0].Limit != 25 {
		t.Fatalf("expected reset window, got %+v", usage[0])
	}
	if !usage[0].WindowStart.Equal(clock.Now()) {
		t.Fatalf("expected window start at now, got %v", usage[0].WindowStart)
	}
}
