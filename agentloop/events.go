package agentloop

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart   EventKind = "session_start"
	EventSessionEnd     EventKind = "session_end"
	EventStateChange    EventKind = "state_change"
	EventUserInput      EventKind = "user_input"
	EventResponse       EventKind = "response"
	EventParseError     EventKind = "parse_error"
	EventTransportError EventKind = "transport_error"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventTurnLimit      EventKind = "turn_limit"
	EventLoopDetection  EventKind = "loop_detection"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers typed events to the host application via a channel.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// SessionID returns the id stamped on every event.
func (e *EventEmitter) SessionID() string {
	return e.sessionID
}

// Emit sends an event to the channel. If the emitter is closed, the event
// is silently dropped.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Channel full; drop event to avoid blocking the agent loop.
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// LogEvents writes every event to logger until the channel closes.
func LogEvents(logger zerolog.Logger, events <-chan SessionEvent) {
	for ev := range events {
		level := zerolog.DebugLevel
		switch ev.Kind {
		case EventSessionStart, EventSessionEnd, EventToolCallStart:
			level = zerolog.InfoLevel
		case EventParseError, EventTransportError, EventTurnLimit, EventLoopDetection:
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).
			Time("at", ev.Timestamp).
			Str("session_id", ev.SessionID).
			Str("event", string(ev.Kind)).
			Fields(ev.Data).
			Msg("session event")
	}
}
