package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/martinemde/stella/unifiedllm"
)

// shellPreviewLines is how much shell output the operator sees per call.
const shellPreviewLines = 10

// ModelSaver persists a provider and model choice for the next start.
type ModelSaver func(provider, model string) error

// CoreToolOptions carries the collaborators the core tools delegate to.
type CoreToolOptions struct {
	Env            ExecutionEnvironment
	CommandTimeout time.Duration

	Operator   Operator
	AskTimeout time.Duration
	Display    Display

	// Provider names the active provider; Models lists its models.
	Provider string
	Models   unifiedllm.ModelLister

	SaveModel ModelSaver
	// ModelOverrides names environment variables that outrank the saved
	// provider or model at the next start.
	ModelOverrides func() []string
}

// RegisterCoreTools registers run_shell, ask_user, list_models, switch_model
// and finish.
func RegisterCoreTools(reg *ToolRegistry, opts CoreToolOptions) error {
	if opts.Display == nil {
		opts.Display = NopDisplay{}
	}
	for _, tool := range []RegisteredTool{
		shellTool(opts),
		askUserTool(opts),
		listModelsTool(opts),
		switchModelTool(opts),
		finishTool(),
	} {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func emptyObjectSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func shellTool(opts CoreToolOptions) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        "run_shell",
			Description: "Run a shell command with bash in the working directory. Returns stdout and stderr; a nonzero exit code is reported, not treated as failure.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The command to run.",
						"minLength":   1,
					},
				},
				"required": []string{"command"},
			},
		},
		Executor: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			var p RunShellParams
			if err := decodeParams(raw, &p); err != nil {
				return ToolResult{}, err
			}
			if opts.Env == nil {
				return ToolResult{}, fmt.Errorf("no execution environment")
			}
			opts.Display.ToolDetail("command: " + p.Command)

			result, err := opts.Env.ExecCommand(ctx, p.Command, opts.CommandTimeout)
			if err != nil {
				return ToolResult{}, err
			}

			preview := strings.TrimSpace(result.Stdout)
			if preview == "" {
				preview = strings.TrimSpace(result.Stderr)
			}
			opts.Display.ToolOutput(Preview(preview, shellPreviewLines))

			return ToolResult{Output: result.Format(opts.CommandTimeout)}, nil
		},
	}
}

func askUserTool(opts CoreToolOptions) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        "ask_user",
			Description: "Ask the user a question or request more information. Blocks until the user answers.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The question to ask.",
					},
				},
				"required": []string{"query"},
			},
		},
		Executor: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			var p AskUserParams
			if err := decodeParams(raw, &p); err != nil {
				return ToolResult{}, err
			}
			if opts.Operator == nil {
				return ToolResult{}, fmt.Errorf("no operator attached")
			}

			if opts.AskTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.AskTimeout)
				defer cancel()
			}

			opts.Display.Question(p.Query)
			answer, err := opts.Operator.ReadLine(ctx, AnswerPrompt)
			switch {
			case err == nil:
				return ToolResult{Output: "[User Answer]: " + answer}, nil
			case errors.Is(err, context.DeadlineExceeded):
				return ToolResult{}, fmt.Errorf("no answer within %s", opts.AskTimeout)
			case errors.Is(err, io.EOF):
				return ToolResult{}, fmt.Errorf("operator input closed")
			default:
				return ToolResult{}, err
			}
		},
	}
}

func listModelsTool(opts CoreToolOptions) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        "list_models",
			Description: "List the model identifiers available from the active provider.",
			Parameters:  emptyObjectSchema(),
		},
		Executor: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			if opts.Models == nil {
				return ToolResult{}, fmt.Errorf("provider %q cannot list models", opts.Provider)
			}
			opts.Display.ToolDetail("provider: " + opts.Provider)

			ids, err := opts.Models.ListModels(ctx)
			if err != nil {
				return ToolResult{}, err
			}
			if len(ids) == 0 {
				return ToolResult{Output: fmt.Sprintf("No models reported for %s.", opts.Provider)}, nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Available models for %s:", opts.Provider)
			for _, id := range ids {
				sb.WriteString("\n- ")
				sb.WriteString(id)
			}
			return ToolResult{Output: sb.String()}, nil
		},
	}
}

func switchModelTool(opts CoreToolOptions) RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name: "switch_model",
			Description: "Save a different provider and model to the configuration file. " +
				"The session ends and the program must be restarted to use it.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"model_name": map[string]interface{}{
						"type":        "string",
						"description": "Model identifier, e.g. one returned by list_models.",
						"minLength":   1,
					},
					"provider": map[string]interface{}{
						"type":        "string",
						"description": "Provider name: " + strings.Join(unifiedllm.ProviderNames(), ", ") + ". Defaults to the active provider.",
					},
				},
				"required": []string{"model_name"},
			},
		},
		Executor: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			var p SwitchModelParams
			if err := decodeParams(raw, &p); err != nil {
				return ToolResult{}, err
			}
			if opts.SaveModel == nil {
				return ToolResult{}, fmt.Errorf("configuration cannot be saved")
			}

			providerName := p.Provider
			if strings.TrimSpace(providerName) == "" {
				providerName = opts.Provider
			}
			info := unifiedllm.GetProvider(providerName)
			if info == nil {
				return ToolResult{}, fmt.Errorf("unknown provider %q (known providers: %s)",
					providerName, strings.Join(unifiedllm.ProviderNames(), ", "))
			}

			model := strings.TrimSpace(p.ModelName)
			if model == "" {
				return ToolResult{}, fmt.Errorf("model_name is required")
			}
			if err := opts.SaveModel(info.Name, model); err != nil {
				return ToolResult{}, fmt.Errorf("save configuration: %w", err)
			}
			output := fmt.Sprintf("Configuration saved (provider=%s, model_name=%s). Restart required to apply.", info.Name, model)
			if opts.ModelOverrides != nil {
				if vars := opts.ModelOverrides(); len(vars) > 0 {
					output += fmt.Sprintf(" Warning: %s set in the environment and will override the saved value.", strings.Join(vars, ", "))
				}
			}
			return ToolResult{Output: output, Signal: SignalRestart}, nil
		},
	}
}

func finishTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        "finish",
			Description: "Call when every task is complete and the final report is in your message.",
			Parameters:  emptyObjectSchema(),
		},
		Executor: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			return ToolResult{Output: "Session finished.", Signal: SignalFinish}, nil
		},
	}
}
