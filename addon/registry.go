// Package addon provides the factory registry extensions are
// instantiated through. An addon is registered under a name and creates
// extensions of one kind; the dispatcher looks addons up by the name a
// graph node declares.
package addon

import (
	"sync"

	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/graph"
)

// Factory creates one extension instance. Factories must not do I/O;
// real work belongs in the extension's lifecycle callbacks.
type Factory func(instanceName string) extension.Extension

// Registration holds the factory and metadata for one addon.
type Registration struct {
	Name     string
	Version  string
	Factory  Factory
	Manifest *graph.Manifest
}

// Registry is a thread-safe addon table. A process typically has one,
// owned by the app, but tests create their own.
type Registry struct {
	mu     sync.RWMutex
	addons map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{addons: map[string]*Registration{}}
}

// Register adds an addon under its name. Duplicate names are invalid.
func (r *Registry) Register(reg *Registration) error {
	if reg == nil || reg.Name == "" {
		return errors.New(errors.CodeInvalidArgument, "registration requires a name")
	}
	if reg.Factory == nil {
		return errors.Newf(errors.CodeInvalidArgument, "addon %q has no factory", reg.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.addons[reg.Name]; exists {
		return errors.Newf(errors.CodeInvalidArgument, "addon %q is already registered", reg.Name)
	}
	r.addons[reg.Name] = reg
	return nil
}

// RegisterExtension is the common shorthand: an addon with just a name
// and a factory.
func (r *Registry) RegisterExtension(name string, factory Factory) error {
	return r.Register(&Registration{Name: name, Factory: factory})
}

// Unregister removes an addon. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.addons, name)
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.addons[name]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidArgument, "addon %q is not registered", name)
	}
	return reg, nil
}

// Create instantiates an extension through the named addon.
func (r *Registry) Create(addonName, instanceName string) (extension.Extension, error) {
	reg, err := r.Lookup(addonName)
	if err != nil {
		return nil, err
	}
	ext := reg.Factory(instanceName)
	if ext == nil {
		return nil, errors.Newf(errors.CodeGeneric, "addon %q factory returned nil", addonName)
	}
	return ext, nil
}

// Names returns the registered addon names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.addons))
	for name := range r.addons {
		out = append(out, name)
	}
	return out
}
