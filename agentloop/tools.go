package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Signal is a control request a tool hands back to the controller.
type Signal int

const (
	SignalNone Signal = iota
	SignalFinish
	SignalRestart
)

func (s Signal) String() string {
	switch s {
	case SignalFinish:
		return "finish"
	case SignalRestart:
		return "restart"
	default:
		return "none"
	}
}

// ToolResult is the text fed back to the model plus an optional signal.
type ToolResult struct {
	Output string
	Signal Signal
}

// ToolExecutor is the function signature for tool execution. It receives the
// decision's parameters re-encoded as JSON.
type ToolExecutor func(ctx context.Context, params json.RawMessage) (ToolResult, error)

// ToolDefinition describes a tool for the system prompt.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor

	schema *gojsonschema.Schema
}

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool. The parameter schema is compiled here so
// a malformed schema fails at startup rather than mid-session.
func (r *ToolRegistry) Register(tool RegisteredTool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	if tool.Executor == nil {
		return fmt.Errorf("register tool %q: executor is required", tool.Definition.Name)
	}
	if tool.Definition.Parameters != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Definition.Parameters))
		if err != nil {
			return fmt.Errorf("register tool %q: invalid parameter schema: %w", tool.Definition.Name, err)
		}
		tool.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
	return nil
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// validate checks params against the tool's schema and returns one line per
// violation.
func (t *RegisteredTool) validate(params json.RawMessage) ([]string, error) {
	if t.schema == nil {
		return nil, nil
	}
	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return violations, nil
}
