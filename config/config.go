package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the root structure for a pipeline definition (e.g. from YAML).
type PipelineConfig struct {
	Name string `yaml:"name"`

	// Develop names another pipeline whose handlers run first.
	Develop  string       `yaml:"develop"`
	Handlers []HandlerRef `yaml:"handlers"`
}

// HandlerRef is a single handler entry: either a plain name or name + options.
// In YAML, a handler can be written as:
//   - json
//   - name: extract
//     key: total
//     expression: sum(items[].price)
//     timeout: 5s
type HandlerRef struct {
	Name string `yaml:"name"`

	// Timeout applied around the handler (e.g. "5s").
	Timeout Duration `yaml:"timeout"`

	// For extract: destination key, JMESPath expression, and source key
	// (default "json").
	Key        string `yaml:"key"`
	Expression string `yaml:"expression"`
	Source     string `yaml:"source"`

	// For expect: rejection reason when the expression is falsy.
	Reason string `yaml:"reason"`
}

// UnmarshalYAML allows a handler to be a string (handler name only) or a struct.
func (h *HandlerRef) UnmarshalYAML(value *yaml.Node) error {
	var nameOnly string
	if err := value.Decode(&nameOnly); err == nil {
		h.Name = nameOnly
		return nil
	}
	type raw HandlerRef
	return value.Decode((*raw)(h))
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParsePipelineConfig parses YAML bytes into a single PipelineConfig.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MultiPipelineConfig is the root structure for a file that defines multiple pipelines.
// Top-level key is "pipelines"; each value is a pipeline (name, develop, handlers).
type MultiPipelineConfig struct {
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

// ParseMultiPipelineConfig parses YAML bytes that contain a "pipelines" map from name to pipeline config.
func ParseMultiPipelineConfig(data []byte) (*MultiPipelineConfig, error) {
	var cfg MultiPipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPipelines reads and parses a multi-pipeline YAML file.
func LoadPipelines(path string) (*MultiPipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines: %w", err)
	}
	cfg, err := ParseMultiPipelineConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
