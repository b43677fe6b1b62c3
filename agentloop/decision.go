package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoToolExecuted is the dispatch result for the "no action" sentinel.
const NoToolExecuted = "No tool executed"

// Decision is the structured object the model emits each turn.
type Decision struct {
	Thought    string                 `json:"thought,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolName returns the trimmed tool name.
func (d Decision) ToolName() string {
	return strings.TrimSpace(d.Tool)
}

// IsNoop reports whether the decision names no tool ("" or "none").
func (d Decision) IsNoop() bool {
	name := d.ToolName()
	return name == "" || strings.EqualFold(name, "none")
}

// RawParameters re-encodes the parameters for handlers and schema checks.
// A nil mapping encodes as an empty object.
func (d Decision) RawParameters() (json.RawMessage, error) {
	if d.Parameters == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(d.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	return raw, nil
}

// DecodeParams decodes the decision's parameters into the tool's typed record.
func DecodeParams(d Decision, into interface{}) error {
	raw, err := d.RawParameters()
	if err != nil {
		return err
	}
	return decodeParams(raw, into)
}

func decodeParams(raw json.RawMessage, into interface{}) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// Typed parameter records, one per core tool.

type RunShellParams struct {
	Command string `json:"command"`
}

type AskUserParams struct {
	Query string `json:"query"`
}

type ListModelsParams struct{}

type SwitchModelParams struct {
	ModelName string `json:"model_name"`
	Provider  string `json:"provider"`
}

type FinishParams struct{}
