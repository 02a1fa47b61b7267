package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// levels: RESPIPE_CLIENT__TIMEOUT=5s sets client.timeout.
const EnvPrefix = "RESPIPE_"

// Settings holds runtime settings for the CLI and executors.
type Settings struct {
	Client        ClientSettings `koanf:"client"`
	Batch         BatchSettings  `koanf:"batch"`
	Log           LogSettings    `koanf:"log"`
	Store         StoreSettings  `koanf:"store"`
	Trace         TraceSettings  `koanf:"trace"`
	PipelinesFile string         `koanf:"pipelines_file"`
}

type ClientSettings struct {
	Timeout      time.Duration `koanf:"timeout"`
	MaxRedirects int           `koanf:"max_redirects"`
}

type BatchSettings struct {
	Concurrency int     `koanf:"concurrency"`
	Rate        float64 `koanf:"rate"` // requests per second, 0 = unlimited
	Burst       int     `koanf:"burst"`
}

type LogSettings struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type StoreSettings struct {
	Path string `koanf:"path"` // SQLite file; empty disables run storage
}

type TraceSettings struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"client.timeout":       "30s",
	"client.max_redirects": 10,
	"batch.concurrency":    4,
	"batch.rate":           0,
	"batch.burst":          1,
	"log.level":            "info",
	"log.format":           "text",
}

// LoadSettings reads settings from the YAML file at path (skipped when path is
// empty or the file does not exist), then RESPIPE_* environment variables,
// filling unset keys with defaults.
func LoadSettings(path string) (*Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports settings that cannot be used.
func (s *Settings) Validate() error {
	var errs []error
	if s.Client.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("client.timeout must be positive"))
	}
	if s.Client.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("client.max_redirects must not be negative"))
	}
	if s.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be at least 1"))
	}
	if s.Batch.Rate < 0 {
		errs = append(errs, fmt.Errorf("batch.rate must not be negative"))
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", s.Log.Format))
	}
	return errors.Join(errs...)
}
