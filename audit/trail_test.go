package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			t.Fatalf("line did not parse as JSON: %q: %v", line, err)
		}
		n++
	}
	return n
}

func TestEnableThenNPromptsThenDisableWritesAtLeastNPlusOne(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "audit.log")
	tr := New(EnvDevelopment)
	redact := false
	if err := tr.Enable(EnableOptions{Destination: dest, RedactPII: &redact, BufferSize: 100, FlushInterval: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	const n = 10
	for i := 0; i < n; i++ {
		tr.LogPrompt(context.Background(), "hello", "u1", "c1", "")
	}
	if err := tr.Disable(); err != nil {
		t.Fatal(err)
	}

	got := countLines(t, dest)
	if got < n+1 {
		t.Fatalf("expected at least %d records (enabled + %d prompts), got %d", n+1, n, got)
	}
	if tr.GetStats().Dropped != 0 {
		t.Fatalf("expected no drops, got %+v", tr.GetStats())
	}
}

func TestDisableIsForbiddenInProduction(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "audit.log")
	tr := New(EnvProduction)
	if err := tr.Enable(EnableOptions{Destination: dest}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Disable(); err != ErrProductionDisableForbidden {
		t.Fatalf("expected ErrProductionDisableForbidden, got %v", err)
	}
}

func TestRedactionReplacesEmailAndPhone(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "audit.log")
	tr := New(EnvDevelopment)
	redact := true
	if err := tr.Enable(EnableOptions{Destination: dest, RedactPII: &redact, FlushInterval: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	tr.LogPrompt(context.Background(), "My email is x@y.com and phone is 555-123-4567", "", "", "")
	if err := tr.Disable(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if strings.Contains(content, "x@y.com") || strings.Contains(content, "555-123-4567") {
		t.Fatalf("expected raw PII to be redacted, got %q", content)
	}
	if !strings.Contains(content, "[EMAIL_REDACTED]") || !strings.Contains(content, "[PHONE_REDACTED]") {
		t.Fatalf("expected redaction tokens present, got %q", content)
	}
}

func TestLogCallsAreNoOpWhenDisabled(t *testing.T) {
	tr := New(EnvDevelopment)
	tr.LogPrompt(context.Background(), "hello", "u", "c", "")
	if stats := tr.GetStats(); stats.Queued != 0 || stats.Written != 0 {
		t.Fatalf("expected a no-op while disabled, got %+v", stats)
	}
}

func TestQueryFiltersByUserID(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "audit.log")
	tr := New(EnvDevelopment)
	if err := tr.Enable(EnableOptions{Destination: dest, FlushInterval: 10 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	tr.LogPrompt(context.Background(), "a", "alice", "c1", "")
	tr.LogPrompt(context.Background(), "b", "bob", "c2", "")
	if err := tr.Disable(); err != nil {
		t.Fatal(err)
	}

	records, err := tr.Query(QueryFilter{Destination: dest, UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].UserID != "alice" {
		t.Fatalf("expected exactly alice's prompt, got %+v", records)
	}
}

func TestExportJSONWritesEnvelope(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "audit.log")
	tr := New(EnvDevelopment)
	if err := tr.Enable(EnableOptions{Destination: dest, FlushInterval: 10 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	tr.LogPrompt(context.Background(), "a", "alice", "c1", "")
	if err := tr.Disable(); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "export.json")
	path, err := tr.ExportJSON(QueryFilter{Destination: dest}, out)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var envelope exportEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.ExportedAt.IsZero() {
		t.Fatal("expected exported_at to be set")
	}
	if len(envelope.Records) == 0 {
		t.Fatal("expected at least one exported record")
	}
}
