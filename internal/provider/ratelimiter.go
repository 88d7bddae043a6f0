package provider

import (
	"sort"
	"sync"
	"time"
)

const (
	ProviderAlphaVantage = "alphavantage"
	ProviderFMP          = "fmp"
)

// RateLimiter tracks per-provider call counts over quota windows. Windows
// reset lazily: the first CanCall after a boundary has passed zeroes the count
// and restarts the window at the current time.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	window  time.Duration
	windows map[string]*rateWindow
}

type rateWindow struct {
	count int
	limit int
	start time.Time
}

// QuotaUsage is a point-in-time view of one provider's window.
type QuotaUsage struct {
	Provider    string    `json:"provider"`
	Calls       int       `json:"calls"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"window_start"`
	ResetsAt    time.Time `json:"resets_at"`
}

// NewRateLimiter creates a limiter with the given window length. A zero
// window means one day. now may be nil to use the wall clock.
func NewRateLimiter(window time.Duration, now func() time.Time) *RateLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		now:     now,
		window:  window,
		windows: make(map[string]*rateWindow),
	}
}

// CanCall reports whether another call to provider fits under limit.
func (r *RateLimiter) CanCall(provider string, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.lookup(provider)
	w.limit = limit
	return w.count < limit
}

// RecordCall counts one attempted call against provider's current window.
func (r *RateLimiter) RecordCall(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookup(provider).count++
}

// Usage returns the current windows sorted by provider name.
func (r *RateLimiter) Usage() []QuotaUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]QuotaUsage, 0, len(r.windows))
	for name := range r.windows {
		w := r.lookup(name)
		out = append(out, QuotaUsage{
			Provider:    name,
			Calls:       w.count,
			Limit:       w.limit,
			WindowStart: w.start,
			ResetsAt:    w.start.Add(r.window),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// lookup must be called with mu held.
func (r *RateLimiter) lookup(provider string) *rateWindow {
	now := r.now()
	w, ok := r.windows[provider]
	if !ok {
		w = &rateWindow{start: now}
		r.windows[provider] = w
		return w
	}
	if !now.Before(w.start.Add(r.window)) {
		w.count = 0
		w.start = now
	}
	return w
}
