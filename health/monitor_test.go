package health

import (
	"errors"
	"testing"
)

type stubPipeline struct {
	total, enabled int
}

func (s stubPipeline) HealthCounts() (int, int) { return s.total, s.enabled }

type stubRateLimiter struct {
	keys int
	err  error
}

func (s stubRateLimiter) TrackedKeyCount() (int, error) { return s.keys, s.err }

func TestGetSystemHealthUnavailablePipelineIsUnhealthy(t *testing.T) {
	m := New()
	snap := m.GetSystemHealth()
	if snap.OverallStatus != StatusUnhealthy {
		t.Fatalf("expected unhealthy with no pipeline wired, got %s", snap.OverallStatus)
	}
	if snap.PipelineStatus.Available {
		t.Fatal("expected pipeline status to be unavailable")
	}
}

func TestGetSystemHealthHealthyWhenAllWired(t *testing.T) {
	m := New()
	m.Pipeline = stubPipeline{total: 5, enabled: 4}
	m.RateLimiter = stubRateLimiter{keys: 3}
	snap := m.GetSystemHealth()
	if snap.OverallStatus != StatusHealthy {
		t.Fatalf("expected healthy, got %s", snap.OverallStatus)
	}
	if snap.PipelineStatus.Total != 5 || snap.PipelineStatus.TotalEnabled != 4 {
		t.Fatalf("unexpected pipeline status: %+v", snap.PipelineStatus)
	}
	if snap.RateLimiterStatus.TotalTrackedKeys != 3 {
		t.Fatalf("unexpected rate limiter status: %+v", snap.RateLimiterStatus)
	}
}

func TestGetSystemHealthDegradedOnRateLimiterError(t *testing.T) {
	m := New()
	m.Pipeline = stubPipeline{total: 1, enabled: 1}
	m.RateLimiter = stubRateLimiter{err: errors.New("backend unreachable")}
	snap := m.GetSystemHealth()
	if snap.OverallStatus != StatusDegraded {
		t.Fatalf("expected degraded, got %s", snap.OverallStatus)
	}
	if snap.RateLimiterStatus.Error == "" {
		t.Fatal("expected rate limiter error to be surfaced")
	}
}

func TestGetSystemHealthDegradedOnRecentError(t *testing.T) {
	m := New()
	m.Pipeline = stubPipeline{total: 1, enabled: 1}
	m.RateLimiter = stubRateLimiter{keys: 0}
	m.RecordError("guardrail construction failed")
	snap := m.GetSystemHealth()
	if snap.OverallStatus != StatusDegraded {
		t.Fatalf("expected degraded after a recorded error, got %s", snap.OverallStatus)
	}
	if len(snap.RecentErrors) != 1 || snap.RecentErrors[0].Message != "guardrail construction failed" {
		t.Fatalf("unexpected recent errors: %+v", snap.RecentErrors)
	}
}

func TestRecordRequestUpdatesPerformanceMetrics(t *testing.T) {
	m := New()
	m.RecordRequest(10, false)
	m.RecordRequest(30, true)
	snap := m.GetSystemHealth()
	pm := snap.PerformanceMetrics
	if pm.TotalRequests != 2 {
		t.Fatalf("expected 2 total requests, got %d", pm.TotalRequests)
	}
	if pm.BlockedRequests != 1 {
		t.Fatalf("expected 1 blocked request, got %d", pm.BlockedRequests)
	}
	if pm.PeakResponseTimeMs != 30 {
		t.Fatalf("expected peak of 30ms, got %f", pm.PeakResponseTimeMs)
	}
	if pm.LastRequestTime.IsZero() {
		t.Fatal("expected last_request_time to be set")
	}
}

func TestRecentErrorsRingBufferBounded(t *testing.T) {
	m := New()
	for i := 0; i < recentErrorsLimit+5; i++ {
		m.RecordError("err")
	}
	snap := m.GetSystemHealth()
	if len(snap.RecentErrors) != recentErrorsLimit {
		t.Fatalf("expected recent errors capped at %d, got %d", recentErrorsLimit, len(snap.RecentErrors))
	}
}

func TestSetAPIKeyStatus(t *testing.T) {
	m := New()
	m.SetAPIKeyStatus("openai", true)
	snap := m.GetSystemHealth()
	if !snap.APIKeysStatus["openai"] {
		t.Fatalf("expected openai key status true, got %+v", snap.APIKeysStatus)
	}
}
