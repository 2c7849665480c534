package message

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/arkadyv/chatloom/internal/stream"
)

// ErrTerminal rejects events arriving after the message froze (a late
// tool_result racing a done frame, for example). Frozen means frozen.
var ErrTerminal = errors.New("message already terminal")

// Reducer folds an ordered event sequence into one assistant message.
// A fresh reducer is streaming; the terminal state is absorbing. All
// terminal transitions, including cancellation, run through the same path
// so there is exactly one way for a message to freeze.
//
// Apply never panics on bad input: protocol violations and late events come
// back as errors with the snapshot unchanged, and the caller decides what
// to log. Fragments and citations are append-only, tool-call statuses never
// regress, and once Streaming flips to false nothing moves again.
type Reducer struct {
	msg      Message
	tracker  *Tracker
	rejected int
}

// NewReducer opens a fresh streaming message for a conversation.
func NewReducer(conversationID string) *Reducer {
	return &Reducer{
		msg: Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Role:           RoleAssistant,
			Streaming:      true,
		},
		tracker: NewTracker(),
	}
}

// Snapshot returns the current message value.
func (r *Reducer) Snapshot() Message {
	return r.msg
}

// Rejected returns how many frames were rejected as protocol violations or
// late arrivals. A data-quality signal, not an error.
func (r *Reducer) Rejected() int {
	return r.rejected
}

// Apply folds one event into the message and returns the new snapshot.
// A non-nil error means the frame was rejected and the snapshot is the
// prior one, unchanged.
func (r *Reducer) Apply(ev stream.Event) (Message, error) {
	if r.msg.Terminal() {
		r.rejected++
		return r.msg, ErrTerminal
	}

	switch e := ev.(type) {
	case stream.Token:
		m := r.msg
		m.Fragments = append(slices.Clip(m.Fragments), e.Text)
		r.msg = m

	case stream.ToolCall:
		// Register assigns positions in announcement order, which is also
		// append order, so the map index and the slice stay in step.
		if _, err := r.tracker.Register(e.ID); err != nil {
			r.rejected++
			return r.msg, err
		}
		m := r.msg
		m.ToolCalls = append(slices.Clip(m.ToolCalls), ToolCall{
			ID:     e.ID,
			Name:   e.Name,
			Input:  e.Input,
			Status: StatusRunning,
		})
		r.msg = m

	case stream.ToolResult:
		pos, err := r.tracker.Resolve(e.ID)
		if err != nil {
			r.rejected++
			return r.msg, err
		}
		m := r.msg
		m.ToolCalls = slices.Clone(m.ToolCalls)
		tc := &m.ToolCalls[pos]
		if e.Err != "" {
			tc.Error = e.Err
			tc.Status = StatusError
		} else {
			tc.Output = e.Output
			tc.Status = StatusDone
		}
		r.msg = m

	case stream.Citation:
		m := r.msg
		m.Citations = append(slices.Clip(m.Citations), e.Source)
		r.msg = m

	case stream.UsageUpdate:
		// Set at most once in practice; last write wins if the backend
		// sends it again. Non-fatal either way.
		m := r.msg
		u := e.Usage
		m.Usage = &u
		r.msg = m

	case stream.Done:
		m := r.msg
		if e.Usage != nil {
			m.Usage = e.Usage
		}
		r.msg = m
		r.terminate(OutcomeDone, "")

	case stream.ErrorEvent:
		r.terminate(OutcomeError, e.Message)
	}

	return r.msg, nil
}

// Cancel applies the user-initiated terminal transition. It is the third
// member of the terminal variant set next to done and error, not a flag:
// already-streamed content, tool calls and citations stay as they are, and
// any still-running tool call is left running in the frozen message.
// Idempotent once the message is terminal.
func (r *Reducer) Cancel() Message {
	if !r.msg.Terminal() {
		r.terminate(OutcomeCancelled, "")
	}
	return r.msg
}

func (r *Reducer) terminate(outcome Outcome, detail string) {
	m := r.msg
	m.Streaming = false
	m.Outcome = outcome
	m.ErrorDetail = detail
	m.RejectedFrames = r.rejected
	m.CompletedAt = time.Now().UTC()
	r.msg = m
}
