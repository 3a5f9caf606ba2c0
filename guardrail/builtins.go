package guardrail

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Built-in type tags. Detector bodies (regex/keyword matching) are the
// out-of-scope "plug-in" layer per spec §1; these exist so the engine has
// something concrete to run in tests and presets.
const (
	TypeLength          = "length"
	TypePromptInjection = "prompt_injection"
	TypeContentFilter    = "content_filter"
	TypePII              = "pii"
	TypeTopic            = "topic"
	TypeURL              = "url"
	TypeSecret           = "secret"
)

// DefaultRegistry returns a Registry pre-seeded with every built-in
// detector constructor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeLength, newLength)
	r.Register(TypePromptInjection, newPromptInjection)
	r.Register(TypeContentFilter, newContentFilter)
	r.Register(TypePII, newPII)
	r.Register(TypeTopic, newTopic)
	r.Register(TypeURL, newURL)
	r.Register(TypeSecret, newSecret)
	return r
}

// --- length -----------------------------------------------------------

type lengthGuard struct {
	base
	minLength int
	maxLength int
}

func newLength(name string, onError OnError, cfg map[string]any) (Guardrail, error) {
	g := &lengthGuard{
		base:      newBase(name, TypeLength, onError),
		minLength: getInt(cfg, "min_length", 0),
		maxLength: getInt(cfg, "max_length", 10000),
	}
	if g.maxLength > 0 && g.minLength > g.maxLength {
		return nil, newError(ErrConfiguration, name, "min_length exceeds max_length")
	}
	return g, nil
}

func (g *lengthGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	n := utf8.RuneCountInString(text)
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 1}
	switch {
	case g.minLength > 0 && n < g.minLength:
		res.Blocked = true
		res.Reason = "input shorter than minimum length"
	case g.maxLength > 0 && n > g.maxLength:
		res.Blocked = true
		res.Reason = "input exceeds maximum length"
	}
	g.record(res, nil)
	return res, nil
}

func (g *lengthGuard) HealthSnapshot() map[string]any {
	return g.snapshot(map[string]any{"min_length": g.minLength, "max_length": g.maxLength})
}

// --- prompt injection ---------------------------------------------------

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?above\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(your\s+)?instructions`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)override\s+(all\s+)?safety`),
	regexp.MustCompile(`(?i)bypass\s+(all\s+)?restrictions`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?you\s+have\s+no\s+(restrictions|rules|limits)`),
	regexp.MustCompile(`(?i)jailbreak`),
}

type promptInjectionGuard struct{ base }

func newPromptInjection(name string, onError OnError, _ map[string]any) (Guardrail, error) {
	return &promptInjectionGuard{base: newBase(name, TypePromptInjection, onError)}, nil
}

func (g *promptInjectionGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 0.9}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			res.Blocked = true
			res.Reason = "potential prompt injection detected"
			res.Indicators = append(res.Indicators, pat.String())
			break
		}
	}
	g.record(res, nil)
	return res, nil
}

func (g *promptInjectionGuard) HealthSnapshot() map[string]any { return g.snapshot(nil) }

// --- content filter -------------------------------------------------------

var defaultContentPatterns = []string{
	"kill yourself", "kys",
	"how to make a bomb", "how to make explosives",
	"how to hack", "how to phish",
}

type contentFilterGuard struct {
	base
	patterns []string
}

func newContentFilter(name string, onError OnError, cfg map[string]any) (Guardrail, error) {
	patterns := append(append([]string{}, defaultContentPatterns...), getStringSlice(cfg, "blocked_phrases")...)
	return &contentFilterGuard{base: newBase(name, TypeContentFilter, onError), patterns: patterns}, nil
}

func (g *contentFilterGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	lower := strings.ToLower(text)
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 0.95}
	for _, pat := range g.patterns {
		if strings.Contains(lower, strings.ToLower(pat)) {
			res.Blocked = true
			res.Reason = "prohibited content detected"
			res.Indicators = []string{pat}
			break
		}
	}
	g.record(res, nil)
	return res, nil
}

func (g *contentFilterGuard) HealthSnapshot() map[string]any { return g.snapshot(nil) }

// --- PII ------------------------------------------------------------------

// PII redaction tokens. This set is the public contract so downstream
// tooling (and the audit trail's redactor, which reuses these patterns)
// can rely on the exact token spelling.
var piiPatterns = []struct {
	name    string
	pattern *regexp.Regexp
	token   string
}{
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{"credit card", regexp.MustCompile(`\b(?:\d{4}[\s\-]?){3}\d{4}\b`), "[CC_REDACTED]"},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{"phone", regexp.MustCompile(`\b(?:\+?1[\s\-]?)?\(?\d{3}\)?[\s\-]?\d{3}[\s\-]?\d{4}\b`), "[PHONE_REDACTED]"},
	{"IP address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP_REDACTED]"},
}

type piiGuard struct{ base }

func newPII(name string, onError OnError, _ map[string]any) (Guardrail, error) {
	return &piiGuard{base: newBase(name, TypePII, onError)}, nil
}

func (g *piiGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 0.85}
	var hits []string
	for _, p := range piiPatterns {
		if p.pattern.MatchString(text) {
			hits = append(hits, p.name)
		}
	}
	if len(hits) > 0 {
		res.Blocked = true
		res.Reason = "PII detected: " + strings.Join(hits, ", ")
		res.Indicators = hits
		res.Details = map[string]any{"categories": hits}
	}
	g.record(res, nil)
	return res, nil
}

func (g *piiGuard) HealthSnapshot() map[string]any { return g.snapshot(nil) }

// RedactPII replaces every recognized PII span in text with its fixed
// token (e.g. "[EMAIL_REDACTED]"), using the same pattern table the PII
// guardrail detects with. Exported so the audit trail's redactor and the
// detector stay in lockstep instead of maintaining two pattern tables.
func RedactPII(text string) string {
	for _, p := range piiPatterns {
		text = p.pattern.ReplaceAllString(text, p.token)
	}
	return text
}

// --- topic ------------------------------------------------------------------

type topicGuard struct {
	base
	blocked []string
}

func newTopic(name string, onError OnError, cfg map[string]any) (Guardrail, error) {
	blocked := getStringSlice(cfg, "blocked_topics")
	if len(blocked) == 0 {
		return nil, newError(ErrMissingField, name, "config.blocked_topics is required")
	}
	return &topicGuard{base: newBase(name, TypeTopic, onError), blocked: blocked}, nil
}

func (g *topicGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	lower := strings.ToLower(text)
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 0.7}
	for _, topic := range g.blocked {
		if strings.Contains(lower, strings.ToLower(topic)) {
			res.Blocked = true
			res.Reason = "blocked topic detected: " + topic
			break
		}
	}
	g.record(res, nil)
	return res, nil
}

func (g *topicGuard) HealthSnapshot() map[string]any {
	return g.snapshot(map[string]any{"blocked_topics": g.blocked})
}

// --- url ------------------------------------------------------------------

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s]+`)

type urlGuard struct {
	base
	allowlist []string
}

func newURL(name string, onError OnError, cfg map[string]any) (Guardrail, error) {
	return &urlGuard{base: newBase(name, TypeURL, onError), allowlist: getStringSlice(cfg, "allowed_domains")}, nil
}

func (g *urlGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 0.8}
	matches := urlPattern.FindAllString(text, -1)
	for _, m := range matches {
		if g.allowed(m) {
			continue
		}
		res.Warned = true
		res.Reason = "unrecognized URL in text"
		res.Indicators = append(res.Indicators, m)
	}
	g.record(res, nil)
	return res, nil
}

func (g *urlGuard) allowed(url string) bool {
	if len(g.allowlist) == 0 {
		return false
	}
	lower := strings.ToLower(url)
	for _, domain := range g.allowlist {
		if strings.Contains(lower, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}

func (g *urlGuard) HealthSnapshot() map[string]any { return g.snapshot(nil) }

// --- secret -----------------------------------------------------------------

var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"AWS Key", regexp.MustCompile(`(?i)(AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16}`)},
	{"GitHub Token", regexp.MustCompile(`(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36,255}`)},
	{"Private Key", regexp.MustCompile(`-----BEGIN\s+(RSA|DSA|EC|OPENSSH|PGP|ENCRYPTED)?\s*PRIVATE KEY-----`)},
	{"Generic Secret", regexp.MustCompile(`(?i)(secret|token|api[_\-]?key)[\s]*[=:]\s*["']?([A-Za-z0-9\-_]{16,})["']?`)},
}

type secretGuard struct{ base }

func newSecret(name string, onError OnError, _ map[string]any) (Guardrail, error) {
	return &secretGuard{base: newBase(name, TypeSecret, onError)}, nil
}

func (g *secretGuard) Analyze(_ context.Context, text string, _ ConversationReader) (Result, error) {
	res := Result{GuardrailName: g.name, GuardrailType: g.typ, Confidence: 0.9}
	var hits []string
	for _, sp := range secretPatterns {
		if sp.pattern.MatchString(text) {
			hits = append(hits, sp.name)
		}
	}
	if len(hits) > 0 {
		res.Blocked = true
		res.Reason = "secret detected: " + strings.Join(hits, ", ")
		res.Indicators = hits
	}
	g.record(res, nil)
	return res, nil
}

func (g *secretGuard) HealthSnapshot() map[string]any { return g.snapshot(nil) }
