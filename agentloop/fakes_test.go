package agentloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// scriptedSession replies from a fixed script and records every input.
type scriptedSession struct {
	mu      sync.Mutex
	replies []interface{} // string or error
	inputs  []string
	block   bool
}

func (s *scriptedSession) SendMessage(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	n := len(s.inputs)
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", fmt.Errorf("send: %w", ctx.Err())
	}
	if n > len(s.replies) {
		return "", errors.New("script exhausted")
	}
	switch r := s.replies[n-1].(type) {
	case error:
		return "", r
	default:
		return r.(string), nil
	}
}

func (s *scriptedSession) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

// scriptedOperator answers ReadLine from a list of lines, then io.EOF.
type scriptedOperator struct {
	lines   []string
	prompts []string
	closed  int
}

func (o *scriptedOperator) ReadLine(ctx context.Context, prompt string) (string, error) {
	o.prompts = append(o.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(o.lines) == 0 {
		return "", io.EOF
	}
	line := o.lines[0]
	o.lines = o.lines[1:]
	return line, nil
}

func (o *scriptedOperator) Close() error {
	o.closed++
	return nil
}

// blockingOperator never answers until ctx ends.
type blockingOperator struct{}

func (blockingOperator) ReadLine(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingOperator) Close() error { return nil }

// recordingDisplay keeps every call as "kind: text".
type recordingDisplay struct {
	lines []string
}

func (d *recordingDisplay) add(kind, text string) {
	d.lines = append(d.lines, kind+": "+text)
}

func (d *recordingDisplay) Thought(text string)       { d.add("thought", text) }
func (d *recordingDisplay) Message(text string)       { d.add("message", text) }
func (d *recordingDisplay) ToolCall(name string)      { d.add("tool", name) }
func (d *recordingDisplay) ToolDetail(text string)    { d.add("detail", text) }
func (d *recordingDisplay) ToolOutput(preview string) { d.add("output", preview) }
func (d *recordingDisplay) Question(query string)     { d.add("question", query) }
func (d *recordingDisplay) ParseFailure(err error, raw string) {
	d.add("parse", err.Error()+" | "+raw)
}
func (d *recordingDisplay) TransportFailure(err error) { d.add("transport", err.Error()) }
func (d *recordingDisplay) Finished()                  { d.add("finished", "") }

// staticLister returns fixed models or an error.
type staticLister struct {
	ids []string
	err error
}

func (l staticLister) ListModels(ctx context.Context) ([]string, error) {
	return l.ids, l.err
}
