package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasSpecBodyLimits(t *testing.T) {
	cfg := Default()
	if cfg.Body.MaxTextBytes != 100*1024 {
		t.Fatalf("expected 100KB text limit, got %d", cfg.Body.MaxTextBytes)
	}
	if cfg.Body.MaxTotalBytes != 1024*1024 {
		t.Fatalf("expected 1MB total limit, got %d", cfg.Body.MaxTotalBytes)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("host: 127.0.0.1\nport: 9090\ndefault_preset: medical\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 9090 || cfg.DefaultPreset != "medical" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STINGER_PORT", "7070")
	t.Setenv("STINGER_API_KEY_HASHES", "abc, def ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7070 {
		t.Fatalf("expected env override to win, got port %d", cfg.Port)
	}
	if len(cfg.APIKeyHashes) != 2 || cfg.APIKeyHashes[0] != "abc" || cfg.APIKeyHashes[1] != "def" {
		t.Fatalf("unexpected api key hashes: %+v", cfg.APIKeyHashes)
	}
}

func TestEnvOverridesRedisAuditIndexAndTracing(t *testing.T) {
	t.Setenv("STINGER_REDIS_ADDR", "localhost:6379")
	t.Setenv("STINGER_AUDIT_INDEX_PATH", "/tmp/stinger-audit-index.db")
	t.Setenv("STINGER_TRACING_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("expected redis_addr override, got %q", cfg.RedisAddr)
	}
	if cfg.AuditIndexPath != "/tmp/stinger-audit-index.db" {
		t.Fatalf("expected audit_index_path override, got %q", cfg.AuditIndexPath)
	}
	if !cfg.TracingEnabled {
		t.Fatal("expected tracing_enabled override to be true")
	}
}
