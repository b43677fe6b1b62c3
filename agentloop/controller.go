package agentloop

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/stella/unifiedllm"
)

// State is a position in the turn state machine.
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateSending       State = "sending"
	StateParsing       State = "parsing"
	StateDispatching   State = "dispatching"
	StateTerminated    State = "terminated"
)

// TerminationReason says why Run returned.
type TerminationReason string

const (
	ReasonFinished        TerminationReason = "finished"
	ReasonRestartRequired TerminationReason = "restart_required"
	ReasonOperatorClosed  TerminationReason = "operator_closed"
	ReasonCancelled       TerminationReason = "cancelled"
	ReasonTurnLimit       TerminationReason = "turn_limit"
)

// Outcome is the result of a finished loop.
type Outcome struct {
	Reason  TerminationReason
	Message string
	Turns   int
}

// Synthesized inputs. Each recoverable failure reaches the model as the next
// turn's text.

func ToolResultInput(result string) string {
	return "Tool execution result:\n" + result
}

func ParseRetryInput(err error) string {
	return "Error: the response was not valid JSON. Reply again with pure JSON only. Details: " + err.Error()
}

func TransportRetryInput(err error) string {
	return "An error occurred while communicating with the API. Please retry: " + err.Error()
}

// ControllerConfig holds the loop limits.
type ControllerConfig struct {
	SendTimeout         time.Duration // 0 = no deadline
	MaxTurns            int           // 0 = unlimited
	LoopDetectionWindow int           // 0 = disabled
}

// DefaultControllerConfig returns the default limits.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		SendTimeout:         2 * time.Minute,
		LoopDetectionWindow: 6,
	}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithDisplay sets the operator-facing output.
func WithDisplay(d Display) ControllerOption {
	return func(c *Controller) {
		c.display = d
	}
}

// WithEmitter sets the event emitter. The controller does not close it.
func WithEmitter(e *EventEmitter) ControllerOption {
	return func(c *Controller) {
		c.emitter = e
	}
}

// Controller drives one session through the turn state machine. Exactly one
// turn is in flight at a time.
type Controller struct {
	session    unifiedllm.Session
	dispatcher *Dispatcher
	operator   Operator
	display    Display
	emitter    *EventEmitter
	config     ControllerConfig
	window     *signatureWindow

	state     State
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewController creates a controller in AwaitingInput.
func NewController(session unifiedllm.Session, dispatcher *Dispatcher, operator Operator, config ControllerConfig, opts ...ControllerOption) *Controller {
	c := &Controller{
		session:    session,
		dispatcher: dispatcher,
		operator:   operator,
		display:    NopDisplay{},
		config:     config,
		window:     newSignatureWindow(config.LoopDetectionWindow),
		state:      StateAwaitingInput,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.emitter == nil {
		c.emitter = NewEventEmitter(uuid.New().String(), 256)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the emitter's channel.
func (c *Controller) Events() <-chan SessionEvent {
	return c.emitter.Events()
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	if prev != next {
		c.emitter.Emit(EventStateChange, map[string]interface{}{
			"from": string(prev),
			"to":   string(next),
		})
	}
}

// Run executes turns until a tool signals the end, the operator closes input,
// the turn limit is reached or ctx is cancelled. The returned error is set
// only when operator input fails for a reason other than closing.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	defer c.closeOperator()
	c.emitter.Emit(EventSessionStart, nil)

	c.setState(StateAwaitingInput)
	input, err := c.readInstructions(ctx)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return c.terminate(Outcome{Reason: ReasonOperatorClosed}), nil
		case ctx.Err() != nil:
			return c.terminate(Outcome{Reason: ReasonCancelled}), nil
		default:
			return c.terminate(Outcome{Reason: ReasonOperatorClosed, Message: err.Error()}), err
		}
	}
	c.emitter.Emit(EventUserInput, map[string]interface{}{"source": "operator", "bytes": len(input)})

	turns := 0
	for {
		if ctx.Err() != nil {
			return c.terminate(Outcome{Reason: ReasonCancelled, Turns: turns}), nil
		}
		if c.config.MaxTurns > 0 && turns >= c.config.MaxTurns {
			c.emitter.Emit(EventTurnLimit, map[string]interface{}{"turns": turns})
			return c.terminate(Outcome{Reason: ReasonTurnLimit, Turns: turns}), nil
		}
		turns++

		c.setState(StateSending)
		reply, err := c.send(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return c.terminate(Outcome{Reason: ReasonCancelled, Turns: turns}), nil
			}
			c.display.TransportFailure(err)
			c.emitter.Emit(EventTransportError, map[string]interface{}{"error": err.Error()})
			input = TransportRetryInput(err)
			c.setState(StateAwaitingInput)
			continue
		}
		c.emitter.Emit(EventResponse, map[string]interface{}{"bytes": len(reply)})

		c.setState(StateParsing)
		decision, err := ParseDecision(reply)
		if err != nil {
			c.display.ParseFailure(err, reply)
			c.emitter.Emit(EventParseError, map[string]interface{}{"error": err.Error()})
			input = ParseRetryInput(err)
			c.setState(StateAwaitingInput)
			continue
		}

		c.setState(StateDispatching)
		result := c.dispatch(ctx, decision)
		switch result.Signal {
		case SignalFinish:
			c.display.Finished()
			return c.terminate(Outcome{Reason: ReasonFinished, Message: result.Output, Turns: turns}), nil
		case SignalRestart:
			return c.terminate(Outcome{Reason: ReasonRestartRequired, Message: result.Output, Turns: turns}), nil
		}

		input = ToolResultInput(result.Output)
		if c.loopDetected(decision) {
			c.emitter.Emit(EventLoopDetection, map[string]interface{}{"tool": decision.ToolName()})
			input += "\n\n" + loopWarning
		}
		c.setState(StateAwaitingInput)
	}
}

// readInstructions reads the first operator line, re-prompting on blank
// input.
func (c *Controller) readInstructions(ctx context.Context) (string, error) {
	for {
		line, err := c.operator.ReadLine(ctx, InitialPrompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) != "" {
			return line, nil
		}
	}
}

func (c *Controller) send(ctx context.Context, input string) (string, error) {
	if c.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.SendTimeout)
		defer cancel()
	}
	return c.session.SendMessage(ctx, input)
}

func (c *Controller) dispatch(ctx context.Context, decision Decision) ToolResult {
	if decision.Thought != "" {
		c.display.Thought(decision.Thought)
	}
	if decision.Message != "" {
		c.display.Message(decision.Message)
	}
	if decision.IsNoop() {
		return c.dispatcher.Dispatch(ctx, decision)
	}

	name := decision.ToolName()
	c.display.ToolCall(name)
	c.emitter.Emit(EventToolCallStart, map[string]interface{}{"tool": name})

	start := time.Now()
	result := c.dispatcher.Dispatch(ctx, decision)

	c.emitter.Emit(EventToolCallEnd, map[string]interface{}{
		"tool":         name,
		"signal":       result.Signal.String(),
		"output_bytes": len(result.Output),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	return result
}

// loopDetected records the decision and reports a repeating tool pattern.
func (c *Controller) loopDetected(decision Decision) bool {
	if decision.IsNoop() || c.config.LoopDetectionWindow <= 0 {
		return false
	}
	params, err := decision.RawParameters()
	if err != nil {
		return false
	}
	c.window.Record(toolCallSignature(decision.ToolName(), params))
	if !DetectLoop(c.window.sigs, c.config.LoopDetectionWindow) {
		return false
	}
	c.window.Reset()
	return true
}

func (c *Controller) terminate(out Outcome) Outcome {
	c.setState(StateTerminated)
	c.closeOperator()
	c.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"reason": string(out.Reason),
		"turns":  out.Turns,
	})
	return out
}

func (c *Controller) closeOperator() {
	c.closeOnce.Do(func() {
		_ = c.operator.Close()
	})
}
