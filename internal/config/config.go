// Package config loads the server-level configuration for the HTTP
// adapter and CLI: listen address, API-key hashes, body-size limits, and
// the environment flag the audit trail and logging packages key their
// smart defaults off. Grounded on the teacher's layered config pattern
// (env overrides on top of defaults) without pulling in viper, which
// nothing else in this module exercises.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BodyLimits are the hard upper bounds spec §6.4 places on a /v1/check
// request body.
type BodyLimits struct {
	MaxTextBytes   int `yaml:"max_text_bytes"`
	MaxContextBytes int `yaml:"max_context_bytes"`
	MaxPresetChars int `yaml:"max_preset_chars"`
	MaxTotalBytes  int `yaml:"max_total_bytes"`
}

// DefaultBodyLimits returns the spec's documented defaults.
func DefaultBodyLimits() BodyLimits {
	return BodyLimits{
		MaxTextBytes:    100 * 1024,
		MaxContextBytes: 10 * 1024,
		MaxPresetChars:  50,
		MaxTotalBytes:   1024 * 1024,
	}
}

// Config is the HTTP/CLI server-level configuration.
type Config struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`

	// APIKeyHashes is the configured set of SHA-256 hex digests accepted
	// by X-API-Key auth (spec §6.4). Empty means auth is disabled unless
	// RequireAPIKey is true, in which case every request gets 503.
	APIKeyHashes  []string `yaml:"api_key_hashes"`
	RequireAPIKey bool     `yaml:"require_api_key"`

	DefaultPreset string     `yaml:"default_preset"`
	Body          BodyLimits `yaml:"body_limits"`

	AuditDestination string `yaml:"audit_destination"`
	AuditRedactPII   *bool  `yaml:"audit_redact_pii"`
	AuditIndexPath   string `yaml:"audit_index_path"`

	// RedisAddr selects the Redis-backed rate limiter (ratelimit.RedisBackend)
	// in place of the default in-memory one when non-empty.
	RedisAddr string `yaml:"redis_addr"`

	// TracingEnabled turns on the OpenTelemetry stdout span exporter for
	// pipeline stage/guardrail spans (see package telemetry).
	TracingEnabled bool `yaml:"tracing_enabled"`
}

// Default returns the zero-config server defaults (development
// environment, auth disabled, basic preset).
func Default() Config {
	return Config{
		Environment:   environmentFromOS(),
		Host:          "0.0.0.0",
		Port:          8080,
		DefaultPreset: "customer_service",
		Body:          DefaultBodyLimits(),
	}
}

func environmentFromOS() string {
	if strings.EqualFold(os.Getenv("ENV"), "production") {
		return "production"
	}
	return "development"
}

// Load reads a YAML file at path (if non-empty) over Default(), then
// applies STINGER_-prefixed environment variable overrides, the same
// layering order the teacher's config loader uses (file, then env).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STINGER_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("STINGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("STINGER_DEFAULT_PRESET"); v != "" {
		cfg.DefaultPreset = v
	}
	if v := os.Getenv("STINGER_API_KEY_HASHES"); v != "" {
		cfg.APIKeyHashes = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("STINGER_REQUIRE_API_KEY"); v != "" {
		cfg.RequireAPIKey = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("STINGER_AUDIT_DESTINATION"); v != "" {
		cfg.AuditDestination = v
	}
	if v := os.Getenv("STINGER_AUDIT_INDEX_PATH"); v != "" {
		cfg.AuditIndexPath = v
	}
	if v := os.Getenv("STINGER_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("STINGER_TRACING_ENABLED"); v != "" {
		cfg.TracingEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ENV"); v != "" {
		if strings.EqualFold(v, "production") {
			cfg.Environment = "production"
		} else {
			cfg.Environment = "development"
		}
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
