package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// Tool is one capability a workflow node may declare.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]interface{}) (string, error)
}

// Registry holds the known tools and their lifecycle state. Retired
// tools stay listed so graphs referencing them fail validation with a
// catalog hit instead of an unknown-tool error. Registry implements
// core.ToolCatalog.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	retired map[string]bool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		retired: make(map[string]bool),
	}
}

// Register adds a tool. Re-registering a name is an error.
func (r *Registry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return errors.New(errors.InvalidInput, "cannot register a nil or unnamed tool")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "tool already registered"),
			errors.Fields{"tool_name": name})
	}
	r.tools[name] = tool
	return nil
}

// Retire marks a tool inactive without removing it from the registry.
func (r *Registry) Retire(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "tool not found"),
			errors.Fields{"tool_name": name})
	}
	r.retired[name] = true
	return nil
}

// Get returns an active tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	if !exists {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "tool not found"),
			errors.Fields{"tool_name": name})
	}
	if r.retired[name] {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "tool is retired"),
			errors.Fields{"tool_name": name})
	}
	return tool, nil
}

// IsToolActive reports whether the named tool exists and has not been
// retired.
func (r *Registry) IsToolActive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists && !r.retired[name]
}

// List returns the names of all active tools, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if !r.retired[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
