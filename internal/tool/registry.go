// Package tool exposes the deployment risk pipeline as a callable
// capability for agent runtimes: a descriptor with a JSON Schema for its
// parameters, and an invoke function that always answers with text.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Descriptor is what an agent runtime needs to present a tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// InvokeFunc runs a tool with JSON-encoded arguments.
type InvokeFunc func(ctx context.Context, args json.RawMessage) Result

// Registration pairs a descriptor with its invoke function.
type Registration struct {
	Descriptor Descriptor
	Invoke     InvokeFunc
}

// Registry holds the tools a server exposes.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(reg Registration) error {
	if reg.Descriptor.Name == "" {
		return errors.New("Register: tool name is required")
	}
	if reg.Invoke == nil {
		return fmt.Errorf("Register: tool %s has no invoke function", reg.Descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[reg.Descriptor.Name]; exists {
		return fmt.Errorf("Register: tool %s already registered", reg.Descriptor.Name)
	}
	r.tools[reg.Descriptor.Name] = reg
	return nil
}

// Get returns the registration for name.
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
