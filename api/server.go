// Package api is the thin HTTP adapter over the engine core (spec
// §6.4): it translates JSON requests into pipeline.CheckOptions calls
// and formats PipelineResult/health/rules snapshots as JSON. Grounded on
// the teacher's devui/api server: a bare *http.ServeMux, a require()
// auth middleware, and writeJSON/writeError helpers, generalized from
// its API-key-to-role model to stinger's single-tier API-key auth.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stinger-run/stinger/health"
	"github.com/stinger-run/stinger/internal/config"
	"github.com/stinger-run/stinger/pipeline"
	"github.com/stinger-run/stinger/ratelimit"
)

// Config wires every dependency the HTTP layer needs. Pipelines is keyed
// by preset name; DefaultPreset selects which one /v1/check and /v1/rules
// use when the request omits preset.
type Config struct {
	Addr          string
	Pipelines     map[string]*pipeline.Pipeline
	DefaultPreset string
	Body          config.BodyLimits
	APIKeyHashes  []string
	RequireAPIKey bool
	Limiter       *ratelimit.Limiter
	Health        *health.Monitor
}

// Server is the HTTP adapter. Safe for concurrent use via its underlying
// *http.Server.
type Server struct {
	cfg  Config
	mux  *http.ServeMux
	http *http.Server
	once sync.Once
}

// NewServer builds and wires the routes for Config.
func NewServer(cfg Config) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "0.0.0.0:8080"
	}
	if strings.TrimSpace(cfg.DefaultPreset) == "" {
		cfg.DefaultPreset = "customer_service"
	}
	if cfg.Body == (config.BodyLimits{}) {
		cfg.Body = config.DefaultBodyLimits()
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.registerRoutes()
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.mux}
	return s
}

// Handler exposes the routed mux, e.g. for httptest.NewServer in tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/v1/check", s.withAuth(s.withRateLimit(s.handleCheck)))
	s.mux.HandleFunc("/v1/rules", s.withAuth(s.handleRules))
	s.mux.HandleFunc("/metrics", s.handleMetrics)
}

// ListenAndServe runs the server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("stinger: http shutdown error: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close shuts the server down immediately; idempotent.
func (s *Server) Close() error {
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
	})
	return outErr
}

func (s *Server) pipelineFor(preset string) (*pipeline.Pipeline, string, error) {
	if preset == "" {
		preset = s.cfg.DefaultPreset
	}
	p, ok := s.cfg.Pipelines[preset]
	if !ok {
		return nil, preset, fmt.Errorf("unknown preset %q", preset)
	}
	return p, preset, nil
}
