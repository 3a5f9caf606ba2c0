package guardrail

import (
	"fmt"
	"strings"
	"sync"
)

// Config is the shape the factory translates into a Guardrail. It mirrors
// spec §6.2's GuardrailCfg: only name/type/enabled/on_error are interpreted
// by the pipeline and factory; every detector-specific option lives under
// Config (the nested map), never as a sibling of it.
type Config struct {
	Name     string         `yaml:"name" json:"name"`
	Type     string         `yaml:"type" json:"type"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	OnError  OnError        `yaml:"on_error" json:"on_error"`
	Config   map[string]any `yaml:"config" json:"config"`
}

// Constructor builds a Guardrail from the nested config sub-map. It must
// read options only from cfg.Config, never from sibling top-level fields;
// registry_test.go enforces this (spec §8 property 7).
type Constructor func(name string, onError OnError, nested map[string]any) (Guardrail, error)

// Registry maps a type tag to a Constructor and enumerates availability.
// The pattern (an RWMutex-guarded map of named factories) is the one the
// teacher uses for its tool registry.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry. Use DefaultRegistry for one
// pre-seeded with the built-in detectors.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for tag. Re-registration is
// idempotent: the latest call wins.
func (r *Registry) Register(tag string, ctor Constructor) {
	tag = strings.TrimSpace(tag)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[tag] = ctor
}

// Tags returns the registered type tags, for enumeration/availability
// queries.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.constructors))
	for tag := range r.constructors {
		tags = append(tags, tag)
	}
	return tags
}

// CreateFromConfig translates {type, name, config} into a constructed
// Guardrail. cfg must name a registered type; semantic validation of
// cfg.Config is each guardrail's own concern, not the factory's.
func (r *Registry) CreateFromConfig(cfg Config) (Guardrail, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, newError(ErrMissingField, "", "config.name is required")
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, newError(ErrMissingField, cfg.Name, "config.type is required")
	}
	onError := cfg.OnError
	if onError == "" {
		onError = OnErrorBlock
	}
	if !onError.Valid() {
		return nil, newError(ErrConfiguration, cfg.Name, fmt.Sprintf("invalid on_error %q", cfg.OnError))
	}

	r.mu.RLock()
	ctor, ok := r.constructors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(ErrInvalidType, cfg.Name, fmt.Sprintf("unregistered guardrail type %q", cfg.Type))
	}

	nested := cfg.Config
	if nested == nil {
		nested = map[string]any{}
	}
	g, err := ctor(cfg.Name, onError, nested)
	if err != nil {
		return nil, err
	}
	return g, nil
}
