package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stinger-run/stinger/internal/config"
	"github.com/stinger-run/stinger/pipeline"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Pipelines == nil {
		p, err := pipeline.FromPreset("basic")
		if err != nil {
			t.Fatalf("FromPreset: %v", err)
		}
		cfg.Pipelines = map[string]*pipeline.Pipeline{"basic": p}
		cfg.DefaultPreset = "basic"
	}
	if cfg.Body == (config.BodyLimits{}) {
		cfg.Body = config.DefaultBodyLimits()
	}
	return NewServer(cfg)
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func TestHealthReportsPipelineAvailable(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.PipelineAvailable {
		t.Fatal("expected pipeline_available = true")
	}
	if body.GuardrailCount == 0 {
		t.Fatal("expected guardrail_count > 0")
	}
}

func TestCheckMissingAPIKeyReturns401(t *testing.T) {
	s := newTestServer(t, Config{RequireAPIKey: true, APIKeyHashes: []string{hashKey("secret")}})

	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCheckUnknownAPIKeyReturns403(t *testing.T) {
	s := newTestServer(t, Config{RequireAPIKey: true, APIKeyHashes: []string{hashKey("secret")}})

	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCheckAuthRequiredButNoKeysConfiguredReturns503(t *testing.T) {
	s := newTestServer(t, Config{RequireAPIKey: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCheckAllowsCleanText(t *testing.T) {
	s := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(`{"text":"hello there"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var body checkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Action != "allow" {
		t.Fatalf("action = %q, want allow", body.Action)
	}
}

func TestCheckRejectsOversizedText(t *testing.T) {
	s := newTestServer(t, Config{})

	oversized := strings.Repeat("a", config.DefaultBodyLimits().MaxTextBytes+1)
	payload, _ := json.Marshal(map[string]string{"text": oversized})
	req := httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCheckRejectsInvalidKind(t *testing.T) {
	s := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(`{"text":"hi","kind":"sideways"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRulesVersionStableAcrossCalls(t *testing.T) {
	s := newTestServer(t, Config{})

	get := func() rulesResponse {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules?preset=basic", nil))
		var body rulesResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	first := get()
	second := get()
	if first.Version != second.Version {
		t.Fatalf("version changed across calls: %q vs %q", first.Version, second.Version)
	}
	if first.Preset != "basic" {
		t.Fatalf("preset = %q, want basic", first.Preset)
	}
}

func TestRulesUnknownPresetReturns404(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules?preset=does-not-exist", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsJSONDefault(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type = %q, want json", ct)
	}
}

func TestMetricsPrometheusFormat(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics?format=prometheus", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	ct := rec.Header().Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		t.Fatalf("content-type = %q, expected prometheus exposition format", ct)
	}
}
