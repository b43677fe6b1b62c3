package agentloop

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitterDropsWhenFullOrClosed(t *testing.T) {
	e := NewEventEmitter("s1", 1)
	e.Emit(EventSessionStart, nil)
	e.Emit(EventSessionEnd, nil) // dropped, buffer full
	e.Close()
	e.Close()
	e.Emit(EventSessionEnd, nil) // dropped, closed

	var got []EventKind
	for ev := range e.Events() {
		got = append(got, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventSessionStart}, got)
}

func TestLogEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	e := NewEventEmitter("s1", 8)
	e.Emit(EventSessionStart, nil)
	e.Emit(EventStateChange, map[string]interface{}{"to": "sending"})
	e.Emit(EventParseError, map[string]interface{}{"error": "no object found"})
	e.Close()

	LogEvents(logger, e.Events())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "debug-level state changes are filtered")
	assert.Contains(t, lines[0], `"event":"session_start"`)
	assert.Contains(t, lines[0], `"session_id":"s1"`)
	assert.Contains(t, lines[1], `"level":"warn"`)
	assert.Contains(t, lines[1], `"error":"no object found"`)
}
