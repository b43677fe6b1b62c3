package unifiedllm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	reply string
	err   error
	seen  []string
}

func (s *stubSession) SendMessage(ctx context.Context, input string) (string, error) {
	s.seen = append(s.seen, input)
	return s.reply, s.err
}

type describedSession struct {
	stubSession
}

func (d *describedSession) Provider() string { return "gemini" }
func (d *describedSession) Model() string    { return "gemini-x" }
func (d *describedSession) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gemini-x"}, nil
}

func TestWrapRunsMiddlewareInOrder(t *testing.T) {
	inner := &stubSession{reply: "ok"}
	var order []string
	tag := func(name string) Middleware {
		return func(ctx context.Context, input string, next SendFunc) (string, error) {
			order = append(order, name+">")
			reply, err := next(ctx, input+"|"+name)
			order = append(order, "<"+name)
			return reply, err
		}
	}

	s := Wrap(inner, tag("a"), tag("b"))
	reply, err := s.SendMessage(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, order)
	assert.Equal(t, []string{"in|a|b"}, inner.seen)
}

func TestWrapWithoutMiddlewareReturnsSession(t *testing.T) {
	inner := &stubSession{}
	assert.Same(t, inner, Wrap(inner))
}

func TestWrapForwardsCapabilities(t *testing.T) {
	noop := func(ctx context.Context, input string, next SendFunc) (string, error) { return next(ctx, input) }

	wrapped := Wrap(&describedSession{}, noop)
	d, ok := wrapped.(Describer)
	require.True(t, ok)
	assert.Equal(t, "gemini", d.Provider())
	assert.Equal(t, "gemini-x", d.Model())
	ids, err := wrapped.(ModelLister).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-x"}, ids)

	plain := Wrap(&stubSession{}, noop)
	assert.Empty(t, plain.(Describer).Provider())
	_, err = plain.(ModelLister).ListModels(context.Background())
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	s := Wrap(&stubSession{reply: "four"}, LoggingMiddleware(logger))
	_, err := s.SendMessage(context.Background(), "ab")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"message":"sending message"`)
	assert.Contains(t, lines[1], `"reply_bytes":4`)
	assert.Contains(t, lines[1], `"input_bytes":2`)

	buf.Reset()
	failing := Wrap(&stubSession{err: errors.New("boom")}, LoggingMiddleware(logger))
	_, err = failing.SendMessage(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}
