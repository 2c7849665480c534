package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Recognized event kinds on the wire.
const (
	KindToken      = "token"
	KindToolCall   = "tool_call"
	KindToolResult = "tool_result"
	KindCitation   = "citation"
	KindUsage      = "usage"
	KindDone       = "done"
	KindError      = "error"
)

// ErrMalformedFrame marks frames with an unknown kind or an unparseable
// payload. The parser boundary drops these; they never reach the reducer.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame represents a single parsed SSE frame from the stream.
type Frame struct {
	Index    int    // ordinal within this request's stream
	Kind     string // token, tool_call, tool_result, citation, done, error
	RawData  string // raw JSON string from the data: line
	RawBytes int    // byte length of this SSE frame
}

// Event is one decoded stream event. The unexported marker method keeps the
// variant set closed to this package.
type Event interface {
	event()
}

// Token carries an incremental text fragment of the assistant reply.
type Token struct {
	Text string
}

// ToolCall announces a tool invocation. Input is opaque to the engine;
// argument schemas belong to the tool backends.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult resolves a previously announced invocation by id. Exactly one
// of Output and Err is set.
type ToolResult struct {
	ID     string
	Output json.RawMessage
	Err    string
}

// Citation references a retrieval source. The record is opaque.
type Citation struct {
	Source json.RawMessage
}

// Usage is the token accounting record attached to a done frame.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	Tokens       int `json:"tokens,omitempty"`
}

// UsageUpdate carries a standalone accounting record. Most backends attach
// usage to the done frame instead; both are accepted.
type UsageUpdate struct {
	Usage Usage
}

// Done marks successful completion. Usage may be nil.
type Done struct {
	Usage *Usage
}

// ErrorEvent marks failed completion with the backend's error detail.
type ErrorEvent struct {
	Message string
}

func (Token) event()      {}
func (ToolCall) event()   {}
func (ToolResult) event() {}
func (Citation) event()   {}
func (UsageUpdate) event() {}
func (Done) event()       {}
func (ErrorEvent) event() {}

// wireID accepts both JSON strings and bare numbers for tool-call ids.
type wireID string

func (w *wireID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*w = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*w = wireID(n.String())
		return nil
	}
	return fmt.Errorf("id must be a string or number, got %s", b)
}

// Decode turns a raw frame into a typed event. A nil event with a non-nil
// error means the frame is malformed and should be dropped.
func Decode(f Frame) (Event, error) {
	switch f.Kind {
	case KindToken:
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(f.RawData), &p); err != nil {
			return nil, fmt.Errorf("%w: token: %v", ErrMalformedFrame, err)
		}
		return Token{Text: p.Text}, nil

	case KindToolCall:
		var p struct {
			ID    wireID          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal([]byte(f.RawData), &p); err != nil {
			return nil, fmt.Errorf("%w: tool_call: %v", ErrMalformedFrame, err)
		}
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("%w: tool_call missing id or name", ErrMalformedFrame)
		}
		return ToolCall{ID: string(p.ID), Name: p.Name, Input: p.Input}, nil

	case KindToolResult:
		var p struct {
			ID     wireID          `json:"id"`
			Output json.RawMessage `json:"output"`
			Error  string          `json:"error"`
		}
		if err := json.Unmarshal([]byte(f.RawData), &p); err != nil {
			return nil, fmt.Errorf("%w: tool_result: %v", ErrMalformedFrame, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: tool_result missing id", ErrMalformedFrame)
		}
		return ToolResult{ID: string(p.ID), Output: p.Output, Err: p.Error}, nil

	case KindCitation:
		if !json.Valid([]byte(f.RawData)) {
			return nil, fmt.Errorf("%w: citation: invalid JSON", ErrMalformedFrame)
		}
		return Citation{Source: json.RawMessage(f.RawData)}, nil

	case KindUsage:
		var p Usage
		if err := json.Unmarshal([]byte(f.RawData), &p); err != nil {
			return nil, fmt.Errorf("%w: usage: %v", ErrMalformedFrame, err)
		}
		return UsageUpdate{Usage: p}, nil

	case KindDone:
		var p struct {
			Usage *Usage `json:"usage"`
		}
		// A bare "done" frame with no payload is legal.
		if f.RawData != "" {
			if err := json.Unmarshal([]byte(f.RawData), &p); err != nil {
				return nil, fmt.Errorf("%w: done: %v", ErrMalformedFrame, err)
			}
		}
		return Done{Usage: p.Usage}, nil

	case KindError:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(f.RawData), &p); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrMalformedFrame, err)
		}
		if p.Message == "" {
			p.Message = f.RawData
		}
		return ErrorEvent{Message: p.Message}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedFrame, f.Kind)
	}
}
