// Package tools defines the tool abstraction the agent loop executes and
// a registry for explicit tool registration. Only registered tools are
// ever exposed to the model or invoked.
package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vitalmind/agentmem/pkg/errors"
)

// Tool is a capability the agent can invoke during a turn.
type Tool interface {
	// Name is the unique identifier the model calls the tool by.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// InputSchema is the JSON schema for the tool's arguments.
	InputSchema() map[string]any

	// Invoke executes the tool. The result string is fed back to the
	// model verbatim.
	Invoke(ctx context.Context, input json.RawMessage) (string, error)
}

// Registry holds the tools available to an agent. Registration is
// explicit; there is no discovery.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering an empty name or a duplicate fails.
func (r *Registry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return errors.Wrap(errors.ErrValidation, "tool must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return errors.Wrap(errors.ErrValidation, "tool %q is already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	r.order = append(r.order, tool.Name())
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// funcTool adapts a plain function into a Tool.
type funcTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, input json.RawMessage) (string, error)
}

// NewFunc wraps a function as a Tool.
func NewFunc(name, description string, schema map[string]any, fn func(ctx context.Context, input json.RawMessage) (string, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string                { return t.name }
func (t *funcTool) Description() string         { return t.description }
func (t *funcTool) InputSchema() map[string]any { return t.schema }

func (t *funcTool) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}
