package pipeline

import (
	"embed"
	"fmt"

	"github.com/stinger-run/stinger/guardrail"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// PresetNames are the shipped presets spec §6.1 requires at minimum.
var PresetNames = []string{
	"basic",
	"customer_service",
	"medical",
	"educational",
	"financial",
	"content_moderation",
}

// LoadPresetConfig decodes an embedded preset's YAML without constructing
// a Pipeline, useful for GET /v1/rules-style introspection.
func LoadPresetConfig(name string) (Config, error) {
	data, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return Config{}, fmt.Errorf("pipeline: unknown preset %q: %w", name, err)
	}
	return LoadConfigYAML(data)
}

// FromPreset builds a Pipeline from one of the embedded presets using the
// built-in guardrail registry.
func FromPreset(name string) (*Pipeline, error) {
	return FromPresetWithRegistry(guardrail.DefaultRegistry(), name)
}

// FromPresetWithRegistry is FromPreset against a caller-supplied
// registry, letting a long-running server share one registry (and its
// factory-level defaults) across every preset it serves.
func FromPresetWithRegistry(registry *guardrail.Registry, name string) (*Pipeline, error) {
	cfg, err := LoadPresetConfig(name)
	if err != nil {
		return nil, err
	}
	return New(registry, cfg), nil
}
