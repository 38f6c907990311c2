package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Tool is a single callable the model may invoke mid-turn (spec §4.4).
// Implementations live under internal/tools/*.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the tool's JSON Schema input definition, validated at
	// call time against the model's supplied arguments.
	Schema() json.RawMessage

	PersistType() models.ToolPersistType

	Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error)
}

// LLMTool is the wire shape a provider adapter needs for advertising tools
// to the model.
type LLMTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry holds every tool available to a given run and enforces the
// allow-list composed by the command resolver (spec §4.1
// RuntimeSettings.AllowedTools).
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), schemas: make(map[string]*jsonschema.Schema)}
}

// Register adds a tool, overwriting any previous registration under the
// same name, and compiles its input schema so Execute can validate
// arguments before dispatch (spec §8 testable property 7).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	if schema, err := compileSchema(t.Name(), t.Schema()); err == nil {
		r.schemas[t.Name()] = schema
	}
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("agent: adding schema resource for %s: %w", name, err)
	}
	return compiler.Compile(resource)
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs the named tool's call, wrapping an unknown-tool lookup
// failure or a schema-validation failure as a ToolError for uniform
// handling by the runner.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return models.ToolResult{}, NewToolError(call.Name, ToolErrorInvalidInput, ErrToolNotFound)
	}

	r.mu.RLock()
	schema := r.schemas[call.Name]
	r.mu.RUnlock()
	if schema != nil && len(call.Input) > 0 {
		var instance interface{}
		if err := json.Unmarshal(call.Input, &instance); err != nil {
			return models.ToolResult{}, NewToolError(call.Name, ToolErrorInvalidInput, fmt.Errorf("decoding input: %w", err))
		}
		if err := schema.Validate(instance); err != nil {
			return models.ToolResult{}, NewToolError(call.Name, ToolErrorInvalidInput, fmt.Errorf("input does not match schema: %w", err))
		}
	}

	return t.Execute(ctx, call)
}

// Filtered returns a new Registry containing only the tools named in
// allowed. A nil allowed slice means "no restriction" and returns r itself.
func (r *Registry) Filtered(allowed []string) *Registry {
	if allowed == nil {
		return r
	}
	out := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range allowed {
		if t, ok := r.tools[name]; ok {
			out.tools[name] = t
			out.schemas[name] = r.schemas[name]
		}
	}
	return out
}

// Excluding returns a new Registry with the named tools removed; used by
// the oracle tool to prevent a nested session from recursively invoking
// oracle, progress_report, or the quest tools (spec §4.4).
func (r *Registry) Excluding(names ...string) *Registry {
	exclude := make(map[string]struct{}, len(names))
	for _, n := range names {
		exclude[n] = struct{}{}
	}
	out := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.tools {
		if _, skip := exclude[name]; skip {
			continue
		}
		out.tools[name] = t
		out.schemas[name] = r.schemas[name]
	}
	return out
}

// AsLLMTools renders every registered tool in the wire shape a provider
// adapter advertises to the model.
func (r *Registry) AsLLMTools() []LLMTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LLMTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, LLMTool{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return out
}

// Names returns every registered tool's name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

func validateCallName(call models.ToolCall) error {
	if call.Name == "" {
		return fmt.Errorf("agent: tool call missing name")
	}
	return nil
}
