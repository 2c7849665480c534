package message

import "errors"

// Protocol violations surfaced by the tracker. These reject the offending
// frame only; the stream keeps going.
var (
	ErrDuplicateToolCall = errors.New("duplicate tool_call id")
	ErrUnknownToolCall   = errors.New("tool_result for unknown id")
	ErrAlreadyResolved   = errors.New("tool_result for already resolved id")
)

// Tracker owns the keyed set of tool calls for one message. Identity is the
// id, not the slice position: results may interleave with other event kinds
// in any order as long as the announcement comes first. Lookups are O(1).
type Tracker struct {
	index    map[string]int // id -> position in the message's ToolCalls
	resolved map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{
		index:    make(map[string]int),
		resolved: make(map[string]bool),
	}
}

// Register records a newly announced invocation and assigns it the next
// display position. Fails if the id was already announced.
func (t *Tracker) Register(id string) (int, error) {
	if _, ok := t.index[id]; ok {
		return 0, ErrDuplicateToolCall
	}
	pos := len(t.index)
	t.index[id] = pos
	return pos, nil
}

// Resolve marks an invocation as resolved and returns its position. Fails
// if the id was never announced or already resolved.
func (t *Tracker) Resolve(id string) (int, error) {
	pos, ok := t.index[id]
	if !ok {
		return 0, ErrUnknownToolCall
	}
	if t.resolved[id] {
		return 0, ErrAlreadyResolved
	}
	t.resolved[id] = true
	return pos, nil
}

// Registered reports whether the id has been announced.
func (t *Tracker) Registered(id string) bool {
	_, ok := t.index[id]
	return ok
}
