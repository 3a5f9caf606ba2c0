package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stinger-run/stinger/guardrail"
)

// Config is the wire shape of a pipeline definition (spec §6.2): a version
// tag plus two ordered guardrail-config lists, one per stage.
type Config struct {
	Version  string `yaml:"version" json:"version"`
	Pipeline struct {
		Input  []guardrail.Config `yaml:"input" json:"input"`
		Output []guardrail.Config `yaml:"output" json:"output"`
	} `yaml:"pipeline" json:"pipeline"`
}

// LoadConfigYAML decodes a YAML document into a Config. Schema validation
// beyond what yaml.Unmarshal itself enforces is out of scope here; the
// loader only decodes.
func LoadConfigYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("pipeline: decode config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}
	return cfg, nil
}
