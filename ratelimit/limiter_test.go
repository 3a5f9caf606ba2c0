package ratelimit

import (
	"context"
	"testing"
)

func TestRecordRequestIncrementsCurrentByOne(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	l.SetDefaultLimits(map[string]int{WindowMinute: 5})

	before, err := l.GetStatus(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if before.Details[WindowMinute].Current != 0 {
		t.Fatalf("expected 0 before any requests, got %d", before.Details[WindowMinute].Current)
	}

	if err := l.RecordRequest(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	after, err := l.GetStatus(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Details[WindowMinute].Current != 1 {
		t.Fatalf("expected current to increase by exactly 1, got %d", after.Details[WindowMinute].Current)
	}
}

func TestCheckRateLimitExceeded(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	l.SetDefaultLimits(map[string]int{WindowMinute: 2})

	for i := 0; i < 2; i++ {
		res, err := l.CheckRateLimit(ctx, "k2", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Exceeded {
			t.Fatalf("should not be exceeded before reaching the limit (i=%d)", i)
		}
		if err := l.RecordRequest(ctx, "k2"); err != nil {
			t.Fatal(err)
		}
	}
	res, err := l.CheckRateLimit(ctx, "k2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exceeded {
		t.Fatal("expected exceeded after reaching the limit")
	}
	if len(res.ExceededWindows) == 0 {
		t.Fatal("expected ExceededWindows to be populated")
	}
}

func TestResetLimits(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	l.SetDefaultLimits(map[string]int{WindowMinute: 1})
	_ = l.RecordRequest(ctx, "k3")
	res, _ := l.CheckRateLimit(ctx, "k3", nil)
	if !res.Exceeded {
		t.Fatal("expected exceeded")
	}
	if err := l.ResetLimits(ctx, "k3"); err != nil {
		t.Fatal(err)
	}
	res, _ = l.CheckRateLimit(ctx, "k3", nil)
	if res.Exceeded {
		t.Fatal("expected not exceeded after reset")
	}
}

func TestZeroLimitAlwaysExceeded(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	res, err := l.CheckRateLimit(ctx, "k4", map[string]int{WindowMinute: 0})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exceeded {
		t.Fatal("limit of 0 should always be exceeded")
	}
}

func TestGetAllKeys(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	_ = l.RecordRequest(ctx, "a")
	_ = l.RecordRequest(ctx, "b")
	keys, err := l.GetAllKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestOverrideLimitsDoNotMutateDefaults(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	l.SetDefaultLimits(map[string]int{WindowMinute: 10})
	_, err := l.CheckRateLimit(ctx, "k5", map[string]int{WindowMinute: 1})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := l.CheckRateLimit(ctx, "other-key", nil)
	if res.Limit[WindowMinute] != 10 {
		t.Fatalf("expected default limit unaffected, got %d", res.Limit[WindowMinute])
	}
}

func TestGlobalIsSingleton(t *testing.T) {
	a := Global()
	b := Global()
	if a != b {
		t.Fatal("Global() should return the same instance")
	}
}
