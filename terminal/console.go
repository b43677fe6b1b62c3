// Package terminal is STELLA's operator console: line input through
// golang.org/x/term when stdin is a terminal, plain buffered reads otherwise,
// and the marked-up output the operator watches while the loop runs.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const rule = "--------------------------------------------------"

type lineResult struct {
	line string
	err  error
}

// Console reads operator lines and renders loop output. It implements both
// agentloop.Operator and agentloop.Display.
type Console struct {
	out    io.Writer
	errOut io.Writer

	// tty mode
	fd       int
	terminal *term.Terminal

	// plain mode
	reader *bufio.Reader

	mu       sync.Mutex
	pending  chan lineResult
	rawState *term.State
	closed   bool
}

// NewConsole returns a console on the process's standard streams. Line
// editing is enabled when stdin is a terminal.
func NewConsole() *Console {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "")
		return &Console{out: t, errOut: os.Stderr, fd: fd, terminal: t}
	}
	return NewPlainConsole(os.Stdin, os.Stdout, os.Stderr)
}

// NewPlainConsole returns a console without line editing.
func NewPlainConsole(in io.Reader, out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut, fd: -1, reader: bufio.NewReader(in)}
}

// ReadLine shows prompt and returns the next line without its terminator.
// When ctx ends first the read keeps running in the background and its line
// is handed to the next ReadLine call.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", io.EOF
	}
	ch := c.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		c.pending = ch
		go func() {
			line, err := c.readLine(prompt)
			ch <- lineResult{line: line, err: err}
		}()
	} else {
		c.repeatPrompt(prompt)
	}
	c.mu.Unlock()

	select {
	case r := <-ch:
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) readLine(prompt string) (string, error) {
	if c.terminal != nil {
		return c.readTerminalLine(prompt)
	}

	fmt.Fprint(c.out, prompt)
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Console) readTerminalLine(prompt string) (string, error) {
	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		return "", fmt.Errorf("terminal: %w", err)
	}
	c.mu.Lock()
	c.rawState = oldState
	c.mu.Unlock()

	if width, height, err := term.GetSize(c.fd); err == nil {
		c.terminal.SetSize(width, height)
	}
	c.terminal.SetPrompt(prompt)
	line, err := c.terminal.ReadLine()

	c.mu.Lock()
	c.rawState = nil
	c.mu.Unlock()
	if restoreErr := term.Restore(c.fd, oldState); restoreErr != nil && err == nil {
		err = fmt.Errorf("terminal: %w", restoreErr)
	}
	return line, err
}

func (c *Console) repeatPrompt(prompt string) {
	if c.terminal != nil {
		c.terminal.SetPrompt(prompt)
		return
	}
	fmt.Fprint(c.out, prompt)
}

// Close restores the terminal if a read left it in raw mode. Later reads
// return io.EOF.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.rawState != nil {
		state := c.rawState
		c.rawState = nil
		return term.Restore(c.fd, state)
	}
	return nil
}

// Banner announces the session.
func (c *Console) Banner(provider, model string) {
	c.println("==================================================")
	c.println(fmt.Sprintf("🌟 STELLA (%s/%s) ready 🌟", provider, model))
	c.println("==================================================")
}

// Notice prints a line outside the loop's own markers.
func (c *Console) Notice(text string) {
	c.println(text)
}

func (c *Console) Thought(text string) {
	c.println("")
	c.println("🧠 [Thought]: " + text)
}

func (c *Console) Message(text string) {
	c.println(rule)
	c.println("💬 [STELLA]: " + text)
	c.println(rule)
}

func (c *Console) ToolCall(name string) {
	c.println("🛠️  [Run]: " + name)
}

func (c *Console) ToolDetail(text string) {
	c.println("   > " + text)
}

func (c *Console) ToolOutput(preview string) {
	if preview == "" {
		c.println("   > (no output)")
		return
	}
	c.println("   > output:\n" + preview)
}

func (c *Console) Question(query string) {
	c.println("")
	c.println("❓ [Question]: " + query)
}

func (c *Console) ParseFailure(err error, raw string) {
	fmt.Fprintf(c.errOut, "\n⚠️  [Parse error]: %v\n", err)
	c.println("--- raw response ---")
	c.println(raw)
	c.println(rule)
}

func (c *Console) TransportFailure(err error) {
	fmt.Fprintf(c.errOut, "\n⚠️  [Transport error]: %v\n", err)
}

func (c *Console) Finished() {
	c.println("")
	c.println("✅ [STELLA] Task complete, ending session.")
}

func (c *Console) println(text string) {
	fmt.Fprintln(c.out, text)
}
