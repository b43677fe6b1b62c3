// Package unifiedllm provides provider-agnostic conversational sessions over
// several LLM backends.
package unifiedllm

import (
	"strings"
	"sync"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// History is an append-only list of role-tagged messages. A turn is
// committed as a user/assistant pair, so a failed exchange leaves no trace.
type History struct {
	messages []Message
	mu       sync.RWMutex
}

// Commit appends one completed exchange.
func (h *History) Commit(input, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, UserMessage(input), AssistantMessage(reply))
}

// Messages returns a copy of the recorded messages.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of recorded messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Transcript flattens the history plus a pending input into one prompt for
// backends that accept a single text. Assistant turns are prefixed so the
// model can tell them apart from user turns.
func (h *History) Transcript(pending string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var parts []string
	for _, msg := range h.messages {
		switch msg.Role {
		case RoleAssistant:
			parts = append(parts, "[Assistant]: "+msg.Content)
		case RoleUser:
			parts = append(parts, "[User]: "+msg.Content)
		}
	}
	if len(parts) == 0 {
		return pending
	}
	parts = append(parts, "[User]: "+pending)
	return strings.Join(parts, "\n\n")
}
