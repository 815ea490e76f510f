package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is the contract every wavemcp tool implements: the eight
// task-management tools in internal/tools each provide a name, a
// description, a JSON schema for their arguments, and an Execute that
// returns the `{success: ...}` JSON body wrapped in a ToolsCallResult.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error)
}

// Prompt serves prompts/get: static or argument-customized guidance text.
type Prompt interface {
	Definition() PromptDefinition
	Get(arguments map[string]string) (*PromptsGetResult, error)
}

// Resource serves resources/read, keyed by URI.
type Resource interface {
	Definition() ResourceDefinition
	Read() (*ResourcesReadResult, error)
}

// ordered is a name-keyed collection that remembers registration order,
// so tools/list and friends report entries in the order serve.go
// registered them rather than map order.
type ordered[T any] struct {
	byKey map[string]T
	keys  []string
}

func newOrdered[T any]() ordered[T] {
	return ordered[T]{byKey: make(map[string]T)}
}

func (o *ordered[T]) add(key string, v T) error {
	if _, exists := o.byKey[key]; exists {
		return fmt.Errorf("%q already registered", key)
	}
	o.byKey[key] = v
	o.keys = append(o.keys, key)
	return nil
}

// Registry holds the registered tools, prompts, and resources for one
// server. Registration happens once at startup; reads happen per
// request, so a single RWMutex over all three collections is enough.
type Registry struct {
	mu        sync.RWMutex
	tools     ordered[Tool]
	prompts   ordered[Prompt]
	resources ordered[Resource] // keyed by URI
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     newOrdered[Tool](),
		prompts:   newOrdered[Prompt](),
		resources: newOrdered[Resource](),
	}
}

// Register adds a tool. Panics on a duplicate name: that's a programming
// error in serve.go's registration list, not a runtime condition.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.tools.add(t.Name(), t); err != nil {
		panic("mcp: tool " + err.Error())
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.byKey[name]
}

// List returns all registered tool definitions in registration order.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools.keys))
	for _, name := range r.tools.keys {
		t := r.tools.byKey[name]
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// RegisterPrompt adds a prompt; panics on a duplicate name.
func (r *Registry) RegisterPrompt(p Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.prompts.add(p.Definition().Name, p); err != nil {
		panic("mcp: prompt " + err.Error())
	}
}

// GetPrompt returns a prompt by name, or nil if not found.
func (r *Registry) GetPrompt(name string) Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prompts.byKey[name]
}

// ListPrompts returns all prompt definitions in registration order.
func (r *Registry) ListPrompts() []PromptDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]PromptDefinition, 0, len(r.prompts.keys))
	for _, name := range r.prompts.keys {
		defs = append(defs, r.prompts.byKey[name].Definition())
	}
	return defs
}

// HasPrompts reports whether any prompts are registered, for the
// initialize capability advertisement.
func (r *Registry) HasPrompts() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts.keys) > 0
}

// RegisterResource adds a resource; panics on a duplicate URI.
func (r *Registry) RegisterResource(res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.resources.add(res.Definition().URI, res); err != nil {
		panic("mcp: resource " + err.Error())
	}
}

// GetResource returns a resource by URI, or nil if not found.
func (r *Registry) GetResource(uri string) Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources.byKey[uri]
}

// ListResources returns all resource definitions in registration order.
func (r *Registry) ListResources() []ResourceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ResourceDefinition, 0, len(r.resources.keys))
	for _, uri := range r.resources.keys {
		defs = append(defs, r.resources.byKey[uri].Definition())
	}
	return defs
}

// HasResources reports whether any resources are registered.
func (r *Registry) HasResources() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources.keys) > 0
}
