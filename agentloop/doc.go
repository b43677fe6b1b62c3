// Package agentloop implements a turn-based loop that uses a language model
// as its decision-making controller.
//
// Each turn the model replies with one JSON decision: a thought, a message
// for the operator, and at most one tool with its parameters. The loop runs
// the tool and feeds its result back as the next input. Every recoverable
// failure (a malformed reply, a transport error, an unknown tool, a failing
// tool) is turned into text for the next turn so the model can adapt.
//
// # Architecture
//
//   - ParseDecision extracts the decision object from raw model text,
//     tolerating code fences and stray prose.
//   - ToolRegistry and Dispatcher map a tool name to its executor, validate
//     parameters against the tool's JSON schema and never fail past their
//     boundary.
//   - Controller is the state machine. Tools end the loop only by returning a
//     Signal, which the controller turns into an Outcome.
//   - EventEmitter streams typed events for logging.
//
// # Quick Start
//
//	reg := agentloop.NewToolRegistry()
//	_ = agentloop.RegisterCoreTools(reg, agentloop.CoreToolOptions{
//	    Env:      agentloop.NewLocalExecutionEnvironment(""),
//	    Operator: operator,
//	})
//	ctrl := agentloop.NewController(session, agentloop.NewDispatcher(reg, 0),
//	    operator, agentloop.DefaultControllerConfig())
//	outcome, err := ctrl.Run(ctx)
package agentloop
