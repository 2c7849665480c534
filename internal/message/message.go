// Package message holds the assistant-message data model and the state
// machine that folds stream events into it. The reducer is pure: it takes
// the prior snapshot plus one event and produces a new snapshot, so it can
// be tested without any transport and published to observers without locks
// on the snapshot itself.
package message

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkadyv/chatloom/internal/stream"
)

// RoleAssistant is the only role a streamed message ever carries.
const RoleAssistant = "assistant"

// Status of a single tool invocation. Never regresses: running is the only
// entry state and done/error are absorbing.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Outcome distinguishes how a message reached its terminal state.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeDone      Outcome = "done"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// ToolCall is one invocation of a named tool, keyed by an id unique within
// the message. ID, Name and Input are fixed at announcement; Output and
// Error are mutually exclusive and set once on resolution.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status Status          `json:"status"`
}

// Message is one snapshot of an in-progress (or frozen) assistant turn.
// Snapshots are values: the reducer never mutates a published snapshot, it
// derives the next one from it.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           string            `json:"role"`
	Fragments      []string          `json:"fragments"`
	ToolCalls      []ToolCall        `json:"tool_calls,omitempty"`
	Citations      []json.RawMessage `json:"citations,omitempty"`
	Usage          *stream.Usage     `json:"usage,omitempty"`
	Streaming      bool              `json:"streaming"`
	Outcome        Outcome           `json:"outcome,omitempty"`
	ErrorDetail    string            `json:"error_detail,omitempty"`

	// Set once, at freeze time.
	RejectedFrames int       `json:"rejected_frames,omitempty"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}

// Content returns the ordered concatenation of all text fragments.
func (m Message) Content() string {
	switch len(m.Fragments) {
	case 0:
		return ""
	case 1:
		return m.Fragments[0]
	}
	var b strings.Builder
	for _, f := range m.Fragments {
		b.WriteString(f)
	}
	return b.String()
}

// Terminal reports whether the message is frozen.
func (m Message) Terminal() bool {
	return m.Outcome != OutcomeNone
}

// ToolCall returns the tool call with the given id, if present.
func (m Message) ToolCall(id string) (ToolCall, bool) {
	for _, tc := range m.ToolCalls {
		if tc.ID == id {
			return tc, true
		}
	}
	return ToolCall{}, false
}
