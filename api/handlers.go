package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stinger-run/stinger/internal/config"
	"github.com/stinger-run/stinger/pipeline"
)

// healthResponse is GET /health's shape (spec §6.4).
type healthResponse struct {
	Status           string `json:"status"`
	PipelineAvailable bool  `json:"pipeline_available"`
	GuardrailCount   int    `json:"guardrail_count"`
	APIKeyConfigured bool   `json:"api_key_configured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	p, _, err := s.pipelineFor("")
	resp := healthResponse{Status: "ok", APIKeyConfigured: len(s.cfg.APIKeyHashes) > 0}
	if err != nil {
		resp.Status = "degraded"
	} else {
		total, _ := p.HealthCounts()
		resp.PipelineAvailable = true
		resp.GuardrailCount = total
	}
	writeJSON(w, http.StatusOK, resp)
}

// checkRequest is POST /v1/check's body shape.
type checkRequest struct {
	Text    string `json:"text"`
	Kind    string `json:"kind"`
	Preset  string `json:"preset"`
	Context string `json:"context,omitempty"`
}

// checkResponse is POST /v1/check's response shape.
type checkResponse struct {
	Action   string              `json:"action"`
	Reasons  []string            `json:"reasons"`
	Warnings []string            `json:"warnings"`
	Metadata checkResponseMeta   `json:"metadata"`
}

type checkResponseMeta struct {
	GuardrailsTriggered []string `json:"guardrails_triggered"`
	ProcessingTimeMs    float64  `json:"processing_time_ms"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}

	boundedReader(w, r, int64(s.cfg.Body.MaxTotalBytes))
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := validateCheckRequest(req, s.cfg.Body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, _, err := s.pipelineFor(req.Preset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := pipeline.CheckOptions{}
	var result pipeline.Result
	switch req.Kind {
	case "response":
		result, err = p.CheckOutput(r.Context(), req.Text, opts)
	default:
		result, err = p.CheckInput(r.Context(), req.Text, opts)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Action:   result.Action(),
		Reasons:  orEmpty(result.Reasons),
		Warnings: orEmpty(result.Warnings),
		Metadata: checkResponseMeta{
			GuardrailsTriggered: triggeredNames(result),
			ProcessingTimeMs:    result.ProcessingTimeMs,
		},
	})
}

func validateCheckRequest(req checkRequest, limits config.BodyLimits) error {
	if len(req.Text) > limits.MaxTextBytes {
		return errTextTooLarge
	}
	if len(req.Context) > limits.MaxContextBytes {
		return errContextTooLarge
	}
	if len(req.Preset) > limits.MaxPresetChars {
		return errPresetTooLong
	}
	if req.Kind != "" && req.Kind != "prompt" && req.Kind != "response" {
		return errInvalidKind
	}
	return nil
}

func triggeredNames(result pipeline.Result) []string {
	names := make([]string, 0, len(result.Details))
	for name, detail := range result.Details {
		if blocked, _ := detail["blocked"].(bool); blocked {
			names = append(names, name)
			continue
		}
		if warned, _ := detail["warned"].(bool); warned {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// rulesResponse is GET /v1/rules's shape (spec §6.4).
type rulesResponse struct {
	Preset     string           `json:"preset"`
	Guardrails rulesGuardrails  `json:"guardrails"`
	Version    string           `json:"version"`
}

type rulesGuardrails struct {
	InputGuardrails  map[string]map[string]any `json:"input_guardrails"`
	OutputGuardrails map[string]map[string]any `json:"output_guardrails"`
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	preset := r.URL.Query().Get("preset")
	p, resolved, err := s.pipelineFor(preset)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	status := p.GetGuardrailStatus()
	writeJSON(w, http.StatusOK, rulesResponse{
		Preset: resolved,
		Guardrails: rulesGuardrails{
			InputGuardrails:  status.InputGuardrails.Guardrails,
			OutputGuardrails: status.OutputGuardrails.Guardrails,
		},
		Version: "1.0." + stableConfigHash(status),
	})
}

// stableConfigHash hashes the enabled guardrail names per stage so
// clients polling /v1/rules can cheaply detect a change without diffing
// the full guardrail structure.
func stableConfigHash(status pipeline.Status) string {
	names := make([]string, 0, status.Total)
	for name, g := range status.InputGuardrails.Guardrails {
		if enabled, _ := g["stage_enabled"].(bool); enabled {
			names = append(names, "in:"+name)
		}
	}
	for name, g := range status.OutputGuardrails.Guardrails {
		if enabled, _ := g["stage_enabled"].(bool); enabled {
			names = append(names, "out:"+name)
		}
	}
	sort.Strings(names)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", names)))
	return hex.EncodeToString(sum[:])[:8]
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "prometheus" {
		promhttp.Handler().ServeHTTP(w, r)
		return
	}
	if s.cfg.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"overall_status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Health.GetSystemHealth())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
