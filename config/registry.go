package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dcshock/respipe/httpstages"
	"github.com/dcshock/respipe/pipeline"
)

// Names of the handlers built from HandlerRef options instead of the registry.
const (
	HandlerExtract = "extract"
	HandlerExpect  = "expect"
)

// Registry maps handler names to pipeline handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]pipeline.Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]pipeline.Handler)}
}

// DefaultRegistry returns a registry holding the httpstages built-ins:
// status, headers, cookies, url, read, text, json, close, expect_ok.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("status", httpstages.Status())
	r.Register("headers", httpstages.Headers())
	r.Register("cookies", httpstages.Cookies())
	r.Register("url", httpstages.URL())
	r.Register("read", httpstages.Read())
	r.Register("text", httpstages.Text())
	r.Register("json", httpstages.JSON())
	r.Register("close", httpstages.Close())
	r.Register("expect_ok", httpstages.ExpectOK())
	return r
}

// Register adds a handler under the given name. Overwrites any existing registration.
func (r *Registry) Register(name string, h pipeline.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]pipeline.Handler)
	}
	r.handlers[name] = h
}

// Get returns the handler for name, or nil and false if not found.
func (r *Registry) Get(name string) (pipeline.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// MustGet returns the handler for name, or panics if not found.
func (r *Registry) MustGet(name string) pipeline.Handler {
	h, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("config: handler %q not registered", name))
	}
	return h
}

// Names returns all registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
