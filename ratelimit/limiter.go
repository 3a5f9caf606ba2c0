// Package ratelimit implements the process-wide global rate limiter that
// backs both the pipeline engine and the HTTP layer. It is keyed by an
// opaque principal key (e.g. a hashed API key) and is orthogonal to any
// per-conversation rate limiting in package conversation.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Window names and their durations. Defaults per spec §3: 60/min,
// 1000/hr, 10000/day.
const (
	WindowMinute = "requests_per_minute"
	WindowHour   = "requests_per_hour"
	WindowDay    = "requests_per_day"
)

var windowDurations = map[string]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

func defaultLimits() map[string]int {
	return map[string]int{
		WindowMinute: 60,
		WindowHour:   1000,
		WindowDay:    10000,
	}
}

// CheckResult is the structured verdict returned by Check. The limiter
// never raises; callers (HTTP layer, pipeline) translate this into a 429
// or an allow decision.
type CheckResult struct {
	Exceeded        bool
	ExceededWindows []string
	Remaining       map[string]int
	Limit           map[string]int
	Reason          string
}

// windowStatus describes one window's state for Status.
type WindowStatus struct {
	Current   int
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Status is the per-key snapshot returned by GetStatus.
type Status struct {
	Details map[string]WindowStatus
}

// Backend stores per-key event timestamps. The default is an in-memory
// map; a Redis-backed implementation satisfies the same interface for
// multi-process deployments.
type Backend interface {
	// Record appends an event at ts for key.
	Record(ctx context.Context, key string, ts time.Time) error
	// CountSince returns the number of events for key newer than since.
	CountSince(ctx context.Context, key string, since time.Time) (int, error)
	// OldestSince returns the oldest recorded event newer than since, if any.
	OldestSince(ctx context.Context, key string, since time.Time) (time.Time, bool, error)
	// Reset clears all recorded events for key.
	Reset(ctx context.Context, key string) error
	// Keys returns every key with recorded state.
	Keys(ctx context.Context) ([]string, error)
}

// Limiter is the global rate limiter. Obtain the process-wide instance via
// Global(); construct isolated instances with New() for tests.
type Limiter struct {
	mu             sync.Mutex
	backend        Backend
	defaultLimits  map[string]int
	perKeyOverride map[string]map[string]int
}

// New constructs a Limiter backed by the given Backend. Pass nil for the
// default in-memory backend.
func New(backend Backend) *Limiter {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Limiter{
		backend:        backend,
		defaultLimits:  defaultLimits(),
		perKeyOverride: map[string]map[string]int{},
	}
}

var (
	globalOnce sync.Once
	globalInst *Limiter
)

// Global returns the lazily-initialized process-wide Limiter singleton.
// Tests and libraries that need isolation should call New() instead.
func Global() *Limiter {
	globalOnce.Do(func() {
		globalInst = New(NewMemoryBackend())
	})
	return globalInst
}

// SetDefaultLimits mutates the defaults applied to keys seen from now on.
func (l *Limiter) SetDefaultLimits(limits map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaultLimits = cloneLimits(limits)
}

func (l *Limiter) limitsFor(key string, override map[string]int) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(override) > 0 {
		return cloneLimits(override)
	}
	if perKey, ok := l.perKeyOverride[key]; ok {
		return cloneLimits(perKey)
	}
	return cloneLimits(l.defaultLimits)
}

// CheckRateLimit reports whether key currently exceeds any configured
// window, without consuming quota. overrideLimits, if non-nil, replaces
// the default limits for this call only.
func (l *Limiter) CheckRateLimit(ctx context.Context, key string, overrideLimits map[string]int) (CheckResult, error) {
	limits := l.limitsFor(key, overrideLimits)
	res := CheckResult{Remaining: map[string]int{}, Limit: map[string]int{}}
	for window, limit := range limits {
		d := windowDurations[window]
		count, err := l.backend.CountSince(ctx, key, time.Now().Add(-d))
		if err != nil {
			return CheckResult{}, err
		}
		res.Limit[window] = limit
		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		res.Remaining[window] = remaining
		if limit <= 0 || count >= limit {
			res.Exceeded = true
			res.ExceededWindows = append(res.ExceededWindows, window)
		}
	}
	sort.Strings(res.ExceededWindows)
	if res.Exceeded {
		res.Reason = "rate limit exceeded for window(s): " + joinStrings(res.ExceededWindows)
	}
	return res, nil
}

// RecordRequest appends an event for key. Callers must only call this
// after a Check that returned Exceeded == false.
func (l *Limiter) RecordRequest(ctx context.Context, key string) error {
	return l.backend.Record(ctx, key, time.Now())
}

// GetStatus returns the full per-window status for key.
func (l *Limiter) GetStatus(ctx context.Context, key string) (Status, error) {
	limits := l.limitsFor(key, nil)
	details := map[string]WindowStatus{}
	for window, limit := range limits {
		d := windowDurations[window]
		since := time.Now().Add(-d)
		count, err := l.backend.CountSince(ctx, key, since)
		if err != nil {
			return Status{}, err
		}
		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		resetAt := time.Now().Add(d)
		if oldest, ok, err := l.backend.OldestSince(ctx, key, since); err == nil && ok {
			resetAt = oldest.Add(d)
		}
		details[window] = WindowStatus{Current: count, Limit: limit, Remaining: remaining, ResetTime: resetAt}
	}
	return Status{Details: details}, nil
}

// ResetLimits clears all recorded state for key.
func (l *Limiter) ResetLimits(ctx context.Context, key string) error {
	return l.backend.Reset(ctx, key)
}

// GetAllKeys returns every key the backend currently tracks.
func (l *Limiter) GetAllKeys(ctx context.Context) ([]string, error) {
	return l.backend.Keys(ctx)
}

// TrackedKeyCount reports how many keys the backend currently tracks,
// satisfying health.RateLimiterStatusProvider without ratelimit
// importing package health.
func (l *Limiter) TrackedKeyCount() (int, error) {
	keys, err := l.backend.Keys(context.Background())
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func cloneLimits(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func joinStrings(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
