package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"

	"github.com/stinger-run/stinger/api"
	"github.com/stinger-run/stinger/audit"
	"github.com/stinger-run/stinger/guardrail"
	"github.com/stinger-run/stinger/health"
	"github.com/stinger-run/stinger/internal/config"
	"github.com/stinger-run/stinger/internal/logging"
	"github.com/stinger-run/stinger/pipeline"
	"github.com/stinger-run/stinger/ratelimit"
	"github.com/stinger-run/stinger/telemetry"
)

// newServeCommand is the long-running counterpart to check-prompt/
// check-response: it builds one pipeline per shipped preset, wires the
// rate limiter, audit trail, health monitor, and tracer into them, and
// serves spec §6.4's HTTP surface until interrupted.
func newServeCommand() *cobra.Command {
	var (
		configPath string
		redisAddr  string
		auditIndex string
		tracing    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stinger HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return wrapInternal(fmt.Errorf("loading config: %w", err))
			}
			if redisAddr != "" {
				cfg.RedisAddr = redisAddr
			}
			if auditIndex != "" {
				cfg.AuditIndexPath = auditIndex
			}
			if tracing {
				cfg.TracingEnabled = true
			}
			logging.Init(cfg.Environment, "")

			trail := audit.Global()
			if cfg.AuditDestination != "" {
				if err := trail.Enable(audit.EnableOptions{
					Destination: cfg.AuditDestination,
					RedactPII:   cfg.AuditRedactPII,
				}); err != nil {
					return wrapInternal(fmt.Errorf("enabling audit trail: %w", err))
				}
			}
			if cfg.AuditIndexPath != "" {
				index, err := audit.OpenSQLiteIndex(cfg.AuditIndexPath)
				if err != nil {
					return wrapInternal(fmt.Errorf("opening audit sqlite index: %w", err))
				}
				trail.Index = index
				defer index.Close()
			}

			limiter, closeLimiter, err := newLimiter(cfg.RedisAddr)
			if err != nil {
				return wrapInternal(fmt.Errorf("constructing rate limiter: %w", err))
			}
			defer closeLimiter()

			monitor := health.Global()
			monitor.RateLimiter = limiter

			tracer, shutdownTracer, err := newTracer(cmd.Context(), cfg.TracingEnabled)
			if err != nil {
				return wrapInternal(fmt.Errorf("constructing tracer: %w", err))
			}
			defer shutdownTracer(context.Background())

			registry := guardrail.DefaultRegistry()
			pipelines := map[string]*pipeline.Pipeline{}
			for _, name := range pipeline.PresetNames {
				p, err := pipeline.FromPresetWithRegistry(registry, name)
				if err != nil {
					logging.Get().Sugar().Warnf("skipping preset %q: %v", name, err)
					continue
				}
				p.Audit = trail
				p.Health = monitor
				p.Tracer = tracer
				pipelines[name] = p
			}
			if len(pipelines) == 0 {
				return wrapInternal(fmt.Errorf("no presets loaded"))
			}
			if _, ok := pipelines[cfg.DefaultPreset]; ok {
				monitor.Pipeline = pipelines[cfg.DefaultPreset]
			}

			server := api.NewServer(api.Config{
				Addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
				Pipelines:     pipelines,
				DefaultPreset: cfg.DefaultPreset,
				Body:          cfg.Body,
				APIKeyHashes:  cfg.APIKeyHashes,
				RequireAPIKey: cfg.RequireAPIKey,
				Limiter:       limiter,
				Health:        monitor,
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "stinger listening on %s\n", server.Addr())
			if err := server.ListenAndServe(ctx); err != nil && err != context.Canceled {
				return wrapInternal(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a stinger config YAML file")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the rate limiter backend (default: in-memory)")
	cmd.Flags().StringVar(&auditIndex, "audit-index", "", "path to a SQLite database mirroring the audit log for fast queries")
	cmd.Flags().BoolVar(&tracing, "tracing", false, "emit OpenTelemetry spans for pipeline/guardrail evaluation to stdout")
	return cmd
}

// newLimiter builds the memory-backed limiter by default, or a
// Redis-backed one when addr is set, sharing multi-window counting logic
// either way through the same ratelimit.Backend interface.
func newLimiter(addr string) (*ratelimit.Limiter, func(), error) {
	if addr == "" {
		return ratelimit.New(ratelimit.NewMemoryBackend()), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	backend := ratelimit.NewRedisBackend(client, "stinger")
	return ratelimit.New(backend), func() { _ = client.Close() }, nil
}

// newTracer returns a noop-backed telemetry.Tracer by default, or one
// wired to a stdout span exporter when enabled.
func newTracer(ctx context.Context, enabled bool) (*telemetry.Tracer, func(context.Context) error, error) {
	if !enabled {
		return telemetry.NewTracer(nil), func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("building stdout span exporter: %w", err)
	}
	tp, shutdown := telemetry.InitTracerProvider("stinger", exporter)
	return telemetry.NewTracer(tp), shutdown, nil
}
