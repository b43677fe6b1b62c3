package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/panics"
)

// ToolExecutionError is a tool failure converted into result text by the
// dispatcher.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// Dispatcher maps a decision to its registered tool and always yields a
// result. Failures become text the model can read.
type Dispatcher struct {
	registry       *ToolRegistry
	maxOutputChars int
}

// NewDispatcher creates a dispatcher over registry. maxOutputChars caps each
// result; zero keeps the per-tool defaults.
func NewDispatcher(registry *ToolRegistry, maxOutputChars int) *Dispatcher {
	return &Dispatcher{registry: registry, maxOutputChars: maxOutputChars}
}

// Registry returns the underlying tool registry.
func (d *Dispatcher) Registry() *ToolRegistry {
	return d.registry
}

// Dispatch runs the decision's tool. It never returns an error and recovers
// handler panics.
func (d *Dispatcher) Dispatch(ctx context.Context, decision Decision) ToolResult {
	if decision.IsNoop() {
		return ToolResult{Output: NoToolExecuted}
	}

	name := decision.ToolName()
	tool := d.registry.Get(name)
	if tool == nil {
		return ToolResult{Output: fmt.Sprintf("Error: unknown tool '%s' was called. Available tools: %s",
			name, strings.Join(d.registry.Names(), ", "))}
	}

	params, err := decision.RawParameters()
	if err != nil {
		return ToolResult{Output: fmt.Sprintf("Error: invalid parameters for '%s': %v", name, err)}
	}
	violations, err := tool.validate(params)
	if err != nil {
		return ToolResult{Output: fmt.Sprintf("Error: invalid parameters for '%s': %v", name, err)}
	}
	if len(violations) > 0 {
		return ToolResult{Output: fmt.Sprintf("Error: invalid parameters for '%s': %s", name, strings.Join(violations, "; "))}
	}

	var result ToolResult
	var execErr error
	var pc panics.Catcher
	pc.Try(func() {
		result, execErr = tool.Executor(ctx, params)
	})
	if r := pc.Recovered(); r != nil {
		execErr = fmt.Errorf("panic: %v", r.Value)
	}
	if execErr != nil {
		return ToolResult{Output: "Error: " + (&ToolExecutionError{Tool: name, Cause: execErr}).Error()}
	}

	result.Output = TruncateToolOutput(result.Output, name, d.maxOutputChars)
	return result
}
