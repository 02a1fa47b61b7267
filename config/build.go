package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dcshock/respipe/httpstages"
	"github.com/dcshock/respipe/pipeline"
)

// ErrCycle is returned when develop references form a loop.
var ErrCycle = errors.New("develop cycle")

// BuildOptions configures how pipelines are built from config.
type BuildOptions struct {
	// Observer is attached to every built pipeline.
	Observer pipeline.Observer

	// Pipelines resolves develop references for BuildPipeline. BuildAllPipelines
	// fills it as it goes.
	Pipelines map[string]*pipeline.Pipeline
}

// BuildPipeline builds a pipeline from config and registry. Handler names in
// config must be registered, except extract and expect which are built from
// their options. A develop reference must be present in opts.Pipelines.
func BuildPipeline(reg *Registry, cfg *PipelineConfig, opts *BuildOptions) (*pipeline.Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	handlers := make([]pipeline.Handler, 0, len(cfg.Handlers))
	for i, ref := range cfg.Handlers {
		if ref.Name == "" {
			return nil, fmt.Errorf("handler %d: name required", i)
		}
		h, err := buildHandler(reg, ref)
		if err != nil {
			return nil, fmt.Errorf("handler %d (%q): %w", i, ref.Name, err)
		}
		handlers = append(handlers, h)
	}

	var p *pipeline.Pipeline
	if cfg.Develop != "" {
		var built *pipeline.Pipeline
		if opts != nil {
			built = opts.Pipelines[cfg.Develop]
		}
		if built == nil {
			return nil, fmt.Errorf("develop: pipeline %q not built", cfg.Develop)
		}
		p = pipeline.Develop(built, handlers...)
	} else {
		p = pipeline.Build(handlers...)
	}
	p.Name = cfg.Name
	if opts != nil {
		p.Observer = opts.Observer
	}
	return p, nil
}

func buildHandler(reg *Registry, ref HandlerRef) (pipeline.Handler, error) {
	var (
		h   pipeline.Handler
		err error
	)
	switch ref.Name {
	case HandlerExtract:
		if ref.Key == "" || ref.Expression == "" {
			return nil, fmt.Errorf("extract requires key and expression")
		}
		source := ref.Source
		if source == "" {
			source = httpstages.KeyJSON
		}
		h, err = httpstages.CompileExtractFrom(source, ref.Key, ref.Expression)
	case HandlerExpect:
		if ref.Expression == "" {
			return nil, fmt.Errorf("expect requires expression")
		}
		h, err = httpstages.CompileExpectExpression(ref.Expression, ref.Reason)
	default:
		if reg == nil {
			return nil, fmt.Errorf("no registry")
		}
		var ok bool
		if h, ok = reg.Get(ref.Name); !ok {
			return nil, fmt.Errorf("not in registry")
		}
	}
	if err != nil {
		return nil, err
	}
	if ref.Timeout > 0 {
		h = pipeline.WithTimeout(h, ref.Timeout.Duration())
	}
	return h, nil
}

// BuildAllPipelines builds a pipeline for each entry in multi. Keys are
// pipeline names; if a pipeline config's Name is empty, the map key is used.
// Pipelines are built after the pipelines they develop.
func BuildAllPipelines(reg *Registry, multi *MultiPipelineConfig, opts *BuildOptions) (map[string]*pipeline.Pipeline, error) {
	if multi == nil {
		return nil, fmt.Errorf("MultiPipelineConfig is nil")
	}
	order, err := buildOrder(multi.Pipelines)
	if err != nil {
		return nil, err
	}

	built := make(map[string]*pipeline.Pipeline, len(multi.Pipelines))
	local := BuildOptions{Pipelines: built}
	if opts != nil {
		local.Observer = opts.Observer
	}
	for _, name := range order {
		cfg := multi.Pipelines[name]
		if cfg.Name == "" {
			cfg.Name = name
		}
		p, err := BuildPipeline(reg, &cfg, &local)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", name, err)
		}
		built[name] = p
	}
	return built, nil
}

// buildOrder sorts pipelines so every develop target precedes its dependents.
func buildOrder(pipelines map[string]PipelineConfig) ([]string, error) {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(path, name), " -> "))
		}
		state[name] = visiting
		if dep := pipelines[name].Develop; dep != "" {
			if _, ok := pipelines[dep]; !ok {
				return fmt.Errorf("pipeline %q: develop %q: unknown pipeline", name, dep)
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
