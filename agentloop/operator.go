package agentloop

import "context"

// Prompts shown when reading operator input.
const (
	InitialPrompt = "Enter instructions: "
	AnswerPrompt  = "   Answer: "
)

// Operator is the line-oriented input side of the terminal.
type Operator interface {
	// ReadLine shows prompt and blocks for one line. It returns io.EOF when
	// input is closed and ctx.Err() when ctx ends first.
	ReadLine(ctx context.Context, prompt string) (string, error)
	// Close releases the input. The controller calls it exactly once.
	Close() error
}

// Display is the operator-facing output of the loop. None of it reaches the
// model.
type Display interface {
	Thought(text string)
	Message(text string)
	ToolCall(name string)
	ToolDetail(text string)
	ToolOutput(preview string)
	Question(query string)
	ParseFailure(err error, raw string)
	TransportFailure(err error)
	Finished()
}

// NopDisplay discards everything.
type NopDisplay struct{}

func (NopDisplay) Thought(string)             {}
func (NopDisplay) Message(string)             {}
func (NopDisplay) ToolCall(string)            {}
func (NopDisplay) ToolDetail(string)          {}
func (NopDisplay) ToolOutput(string)          {}
func (NopDisplay) Question(string)            {}
func (NopDisplay) ParseFailure(error, string) {}
func (NopDisplay) TransportFailure(error)     {}
func (NopDisplay) Finished()                  {}
