package message_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyv/chatloom/internal/message"
	"github.com/arkadyv/chatloom/internal/stream"
)

func apply(t *testing.T, r *message.Reducer, evs ...stream.Event) message.Message {
	t.Helper()
	var snap message.Message
	for _, ev := range evs {
		var err error
		snap, err = r.Apply(ev)
		require.NoError(t, err)
	}
	return snap
}

func TestTokenConcatenation(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.Token{Text: "one "},
		stream.Token{Text: "two "},
		stream.Token{Text: "three"},
	)
	assert.Equal(t, "one two three", snap.Content())
	assert.True(t, snap.Streaming)

	snap = apply(t, r, stream.Done{})
	assert.Equal(t, "one two three", snap.Content())
	assert.False(t, snap.Streaming)
	assert.Equal(t, message.OutcomeDone, snap.Outcome)
}

func TestFullTurn(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.Token{Text: "Hel"},
		stream.Token{Text: "lo"},
		stream.ToolCall{ID: "1", Name: "calculator", Input: json.RawMessage(`{"expression":"2+2"}`)},
		stream.ToolResult{ID: "1", Output: json.RawMessage(`4`)},
		stream.Citation{Source: json.RawMessage(`{"document_id":"doc-7"}`)},
		stream.Done{Usage: &stream.Usage{Tokens: 42}},
	)

	assert.Equal(t, "Hello", snap.Content())
	assert.False(t, snap.Streaming)
	assert.Equal(t, message.OutcomeDone, snap.Outcome)

	require.Len(t, snap.ToolCalls, 1)
	tc := snap.ToolCalls[0]
	assert.Equal(t, "1", tc.ID)
	assert.Equal(t, "calculator", tc.Name)
	assert.Equal(t, message.StatusDone, tc.Status)
	assert.Equal(t, "4", string(tc.Output))
	assert.Empty(t, tc.Error)

	require.Len(t, snap.Citations, 1)
	require.NotNil(t, snap.Usage)
	assert.Equal(t, 42, snap.Usage.Tokens)
	assert.Equal(t, message.RoleAssistant, snap.Role)
	assert.False(t, snap.CompletedAt.IsZero())
}

func TestToolResultErrorVariant(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.ToolCall{ID: "a", Name: "web_search", Input: json.RawMessage(`{"query":"go"}`)},
		stream.ToolResult{ID: "a", Err: "backend unavailable"},
		stream.Done{},
	)

	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, message.StatusError, snap.ToolCalls[0].Status)
	assert.Equal(t, "backend unavailable", snap.ToolCalls[0].Error)
	assert.Empty(t, snap.ToolCalls[0].Output)
}

func TestUnresolvedToolCallStaysRunning(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.ToolCall{ID: "slow", Name: "web_search"},
		stream.Done{},
	)

	// A terminal message may legitimately carry an unresolved call.
	assert.Equal(t, message.OutcomeDone, snap.Outcome)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, message.StatusRunning, snap.ToolCalls[0].Status)
}

func TestDuplicateToolCallRejected(t *testing.T) {
	r := message.NewReducer("conv-1")

	apply(t, r, stream.ToolCall{ID: "1", Name: "calculator"})

	_, err := r.Apply(stream.ToolCall{ID: "1", Name: "calculator"})
	assert.ErrorIs(t, err, message.ErrDuplicateToolCall)

	// The stream keeps going after the rejection.
	snap := apply(t, r, stream.Token{Text: "still here"}, stream.Done{})
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, "still here", snap.Content())
	assert.Equal(t, 1, snap.RejectedFrames)
}

func TestUnknownToolResultRejected(t *testing.T) {
	r := message.NewReducer("conv-1")

	_, err := r.Apply(stream.ToolResult{ID: "ghost", Output: json.RawMessage(`1`)})
	assert.ErrorIs(t, err, message.ErrUnknownToolCall)

	snap := apply(t, r, stream.Done{})
	assert.Empty(t, snap.ToolCalls)
}

func TestToolResultForResolvedCallRejected(t *testing.T) {
	r := message.NewReducer("conv-1")

	apply(t, r,
		stream.ToolCall{ID: "1", Name: "calculator"},
		stream.ToolResult{ID: "1", Output: json.RawMessage(`4`)},
	)

	_, err := r.Apply(stream.ToolResult{ID: "1", Output: json.RawMessage(`5`)})
	assert.ErrorIs(t, err, message.ErrAlreadyResolved)

	snap := r.Snapshot()
	assert.Equal(t, "4", string(snap.ToolCalls[0].Output))
}

func TestCitationsAccumulateInArrivalOrder(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.Citation{Source: json.RawMessage(`{"n":1}`)},
		stream.Token{Text: "x"},
		stream.Citation{Source: json.RawMessage(`{"n":2}`)},
		stream.ToolCall{ID: "t", Name: "calculator"},
		stream.Citation{Source: json.RawMessage(`{"n":1}`)}, // duplicates are legal
		stream.Done{},
	)

	require.Len(t, snap.Citations, 3)
	assert.Equal(t, `{"n":1}`, string(snap.Citations[0]))
	assert.Equal(t, `{"n":2}`, string(snap.Citations[1]))
	assert.Equal(t, `{"n":1}`, string(snap.Citations[2]))
}

func TestUsageLastWriteWins(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.UsageUpdate{Usage: stream.Usage{Tokens: 10}},
		stream.UsageUpdate{Usage: stream.Usage{Tokens: 20}},
		stream.Done{Usage: &stream.Usage{Tokens: 42}},
	)

	require.NotNil(t, snap.Usage)
	assert.Equal(t, 42, snap.Usage.Tokens)
}

func TestErrorEventFreezesWithDetail(t *testing.T) {
	r := message.NewReducer("conv-1")

	snap := apply(t, r,
		stream.Token{Text: "partial"},
		stream.ErrorEvent{Message: "model overloaded"},
	)

	assert.Equal(t, message.OutcomeError, snap.Outcome)
	assert.Equal(t, "model overloaded", snap.ErrorDetail)
	assert.Equal(t, "partial", snap.Content())
	assert.False(t, snap.Streaming)
}

func TestEventsAfterTerminalDropped(t *testing.T) {
	r := message.NewReducer("conv-1")

	apply(t, r, stream.Token{Text: "done"}, stream.Done{})

	for _, ev := range []stream.Event{
		stream.Token{Text: "late"},
		stream.ToolCall{ID: "x", Name: "calculator"},
		stream.ToolResult{ID: "x", Output: json.RawMessage(`1`)},
		stream.Citation{Source: json.RawMessage(`{}`)},
		stream.Done{},
	} {
		_, err := r.Apply(ev)
		assert.ErrorIs(t, err, message.ErrTerminal)
	}

	snap := r.Snapshot()
	assert.Equal(t, "done", snap.Content())
	assert.Empty(t, snap.ToolCalls)
	assert.Empty(t, snap.Citations)
}

func TestCancelFreezesAndIsIdempotent(t *testing.T) {
	r := message.NewReducer("conv-1")

	apply(t, r,
		stream.Token{Text: "Par"},
		stream.ToolCall{ID: "1", Name: "web_search"},
	)

	snap := r.Cancel()
	assert.Equal(t, message.OutcomeCancelled, snap.Outcome)
	assert.False(t, snap.Streaming)
	assert.Equal(t, "Par", snap.Content())
	// Running tool calls are left as-is.
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, message.StatusRunning, snap.ToolCalls[0].Status)

	again := r.Cancel()
	assert.Equal(t, snap.Outcome, again.Outcome)
	assert.Equal(t, snap.CompletedAt, again.CompletedAt)

	_, err := r.Apply(stream.Token{Text: "late"})
	assert.ErrorIs(t, err, message.ErrTerminal)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	r := message.NewReducer("conv-1")

	early := apply(t, r,
		stream.Token{Text: "a"},
		stream.ToolCall{ID: "1", Name: "calculator"},
	)

	apply(t, r,
		stream.Token{Text: "b"},
		stream.ToolResult{ID: "1", Output: json.RawMessage(`4`)},
	)

	// The earlier snapshot is unaffected by later events.
	assert.Equal(t, "a", early.Content())
	assert.Equal(t, message.StatusRunning, early.ToolCalls[0].Status)

	late := r.Snapshot()
	assert.Equal(t, "ab", late.Content())
	assert.Equal(t, message.StatusDone, late.ToolCalls[0].Status)
}
