// Package registry implements the connector factory. Platform variants
// register a constructor and a config schema from their init functions;
// importing a variant package is all it takes to make the platform
// creatable.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/quantfold/mtlink/pkg/config"
	"github.com/quantfold/mtlink/pkg/connector/core"
	"github.com/quantfold/mtlink/pkg/mtlinkerrors"
)

// Factory constructs a connector for one platform from its configuration
// section. Constructors validate configuration eagerly and fail fast; they
// never dial the terminal.
type Factory func(cfg config.PlatformConfig) (core.Connector, error)

// Registry maps platform identifiers to connector constructors and config
// schemas. Identifiers are case-insensitive; the zero value is ready to use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	schemas   map[string]core.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		schemas:   make(map[string]core.Schema),
	}
}

// Register adds a platform constructor and its config schema. Registering a
// nil factory or reusing an identifier is a programming error and panics,
// matching how init-time registration failures should surface.
func (r *Registry) Register(platform string, factory Factory, schema core.Schema) {
	key := normalize(platform)
	if key == "" {
		panic("registry: empty platform identifier")
	}
	if factory == nil {
		panic(fmt.Sprintf("registry: nil factory for platform %q", platform))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
		r.schemas = make(map[string]core.Schema)
	}
	if _, exists := r.factories[key]; exists {
		panic(fmt.Sprintf("registry: platform %q registered twice", key))
	}
	r.factories[key] = factory
	r.schemas[key] = schema
}

// Create constructs a connector for the given platform identifier. Unknown
// identifiers produce an Unsupported error naming the platforms that are
// registered.
func (r *Registry) Create(platform string, cfg config.PlatformConfig) (core.Connector, error) {
	key := normalize(platform)

	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, mtlinkerrors.Newf(mtlinkerrors.ErrorTypeUnsupported,
			"unsupported trading platform %q (supported: %s)",
			platform, strings.Join(r.Supported(), ", "))
	}

	return factory(cfg)
}

// Has reports whether a platform is registered.
func (r *Registry) Has(platform string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalize(platform)]
	return ok
}

// Supported returns the registered platform identifiers, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]string, 0, len(r.factories))
	for name := range r.factories {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	return platforms
}

// ConfigSchema returns the config schema registered for a platform.
func (r *Registry) ConfigSchema(platform string) (core.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[normalize(platform)]
	return schema, ok
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// global is the process-wide registry populated by variant init functions.
var global = NewRegistry()

// Register adds a platform to the global registry.
func Register(platform string, factory Factory, schema core.Schema) {
	global.Register(platform, factory, schema)
}

// Create constructs a connector from the global registry.
func Create(platform string, cfg config.PlatformConfig) (core.Connector, error) {
	return global.Create(platform, cfg)
}

// Has reports whether the global registry knows a platform.
func Has(platform string) bool {
	return global.Has(platform)
}

// Supported lists the platforms in the global registry.
func Supported() []string {
	return global.Supported()
}

// ConfigSchema returns a platform schema from the global registry.
func ConfigSchema(platform string) (core.Schema, bool) {
	return global.ConfigSchema(platform)
}

// Default exposes the global registry as a core.Factory.
func Default() core.Factory {
	return global
}

var _ core.Factory = (*Registry)(nil)
