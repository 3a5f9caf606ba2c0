// Package health aggregates the counters and latencies observed across a
// pipeline run and exposes a single system-health snapshot (spec §4.7).
// It never calls into pipeline, ratelimit, or audit directly — callers
// wire a PipelineStatus/RateLimiterStatus provider in, the same
// dependency-inversion pattern package pipeline uses for its AuditSink
// and HealthRecorder interfaces.
package health

import (
	"sync"
	"time"
)

// OverallStatus is the top-level verdict in GetSystemHealth's snapshot.
type OverallStatus string

const (
	StatusHealthy   OverallStatus = "healthy"
	StatusDegraded  OverallStatus = "degraded"
	StatusUnhealthy OverallStatus = "unhealthy"
)

// recentErrorsLimit bounds the ring buffer of recent errors kept for the
// snapshot; older errors roll off.
const recentErrorsLimit = 20

// PipelineStatusProvider supplies the pipeline_status block. A Pipeline
// satisfies this via HealthCounts.
type PipelineStatusProvider interface {
	HealthCounts() (total int, totalEnabled int)
}

// RateLimiterStatusProvider supplies the rate_limiter_status block. A
// ratelimit.Limiter satisfies this via GetAllKeys.
type RateLimiterStatusProvider interface {
	TrackedKeyCount() (int, error)
}

// RecordedError is one entry of recent_errors.
type RecordedError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// PerformanceMetrics is the performance_metrics block (spec §4.7).
type PerformanceMetrics struct {
	TotalRequests      int64     `json:"total_requests"`
	BlockedRequests    int64     `json:"blocked_requests"`
	AvgResponseTimeMs  float64   `json:"avg_response_time_ms"`
	PeakResponseTimeMs float64   `json:"peak_response_time_ms"`
	LastRequestTime    time.Time `json:"last_request_time"`
}

// PipelineStatus is the pipeline_status block.
type PipelineStatus struct {
	Available    bool   `json:"available"`
	Total        int    `json:"total"`
	TotalEnabled int    `json:"total_enabled"`
	Error        string `json:"error,omitempty"`
}

// RateLimiterStatus is the rate_limiter_status block.
type RateLimiterStatus struct {
	Available       bool   `json:"available"`
	TotalTrackedKeys int   `json:"total_tracked_keys"`
	Error           string `json:"error,omitempty"`
}

// Snapshot is the full get_system_health() result.
type Snapshot struct {
	OverallStatus      OverallStatus        `json:"overall_status"`
	PipelineStatus     PipelineStatus       `json:"pipeline_status"`
	APIKeysStatus      map[string]bool      `json:"api_keys_status"`
	RateLimiterStatus  RateLimiterStatus    `json:"rate_limiter_status"`
	RecentErrors       []RecordedError      `json:"recent_errors"`
	PerformanceMetrics PerformanceMetrics   `json:"performance_metrics"`
}

// emaAlpha weights UpdatePerformanceMetrics' rolling average. Documented
// choice (spec §4.7 permits either an EMA or an exact mean): an EMA needs
// no unbounded counter history and reacts to recent latency shifts, which
// matters more for a guardrail pipeline than a perfectly exact mean.
const emaAlpha = 0.2

// Monitor is the process-wide health aggregator. Construct with New for
// an isolated instance (tests), or use Global for the process-wide
// default. Safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	totalRequests   int64
	blockedRequests int64
	avgResponseMs   float64
	peakResponseMs  float64
	lastRequestTime time.Time

	recentErrors []RecordedError

	Pipeline     PipelineStatusProvider
	RateLimiter  RateLimiterStatusProvider
	APIKeys      map[string]bool
}

// New constructs an empty Monitor.
func New() *Monitor {
	return &Monitor{APIKeys: map[string]bool{}}
}

var (
	globalOnce sync.Once
	globalInst *Monitor
)

// Global returns the process-wide singleton, lazily constructed.
func Global() *Monitor {
	globalOnce.Do(func() { globalInst = New() })
	return globalInst
}

// RecordRequest implements pipeline.HealthRecorder: it updates the
// rolling performance counters after one check_input/check_output call.
func (m *Monitor) RecordRequest(responseTimeMs float64, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests++
	if blocked {
		m.blockedRequests++
	}
	if responseTimeMs > m.peakResponseMs {
		m.peakResponseMs = responseTimeMs
	}
	if m.totalRequests == 1 {
		m.avgResponseMs = responseTimeMs
	} else {
		m.avgResponseMs = emaAlpha*responseTimeMs + (1-emaAlpha)*m.avgResponseMs
	}
	m.lastRequestTime = time.Now()
}

// RecordError appends to the recent_errors ring buffer.
func (m *Monitor) RecordError(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentErrors = append(m.recentErrors, RecordedError{Timestamp: time.Now(), Message: message})
	if len(m.recentErrors) > recentErrorsLimit {
		m.recentErrors = m.recentErrors[len(m.recentErrors)-recentErrorsLimit:]
	}
}

// SetAPIKeyStatus records one service's availability for api_keys_status
// (e.g. "openai": true once a round-trip auth check has succeeded).
func (m *Monitor) SetAPIKeyStatus(service string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.APIKeys[service] = available
}

// GetSystemHealth assembles the full snapshot (spec §4.7). overallStatus
// is derived from the component statuses: unhealthy if the pipeline is
// unavailable, degraded if the rate limiter is unavailable or any errors
// were recorded recently, healthy otherwise.
func (m *Monitor) GetSystemHealth() Snapshot {
	m.mu.Lock()
	perf := PerformanceMetrics{
		TotalRequests:      m.totalRequests,
		BlockedRequests:    m.blockedRequests,
		AvgResponseTimeMs:  m.avgResponseMs,
		PeakResponseTimeMs: m.peakResponseMs,
		LastRequestTime:    m.lastRequestTime,
	}
	errs := make([]RecordedError, len(m.recentErrors))
	copy(errs, m.recentErrors)
	apiKeys := make(map[string]bool, len(m.APIKeys))
	for k, v := range m.APIKeys {
		apiKeys[k] = v
	}
	pipelineProvider := m.Pipeline
	rateLimiterProvider := m.RateLimiter
	m.mu.Unlock()

	pipelineStatus := PipelineStatus{}
	if pipelineProvider == nil {
		pipelineStatus.Error = "pipeline not wired to health monitor"
	} else {
		total, enabled := pipelineProvider.HealthCounts()
		pipelineStatus = PipelineStatus{Available: true, Total: total, TotalEnabled: enabled}
	}

	rateLimiterStatus := RateLimiterStatus{}
	if rateLimiterProvider == nil {
		rateLimiterStatus.Error = "rate limiter not wired to health monitor"
	} else if n, err := rateLimiterProvider.TrackedKeyCount(); err != nil {
		rateLimiterStatus.Error = err.Error()
	} else {
		rateLimiterStatus = RateLimiterStatus{Available: true, TotalTrackedKeys: n}
	}

	overall := StatusHealthy
	if !pipelineStatus.Available {
		overall = StatusUnhealthy
	} else if !rateLimiterStatus.Available || len(errs) > 0 {
		overall = StatusDegraded
	}

	return Snapshot{
		OverallStatus:      overall,
		PipelineStatus:     pipelineStatus,
		APIKeysStatus:      apiKeys,
		RateLimiterStatus:  rateLimiterStatus,
		RecentErrors:       errs,
		PerformanceMetrics: perf,
	}
}
