package stream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyv/chatloom/internal/stream"
)

func decode(t *testing.T, kind, data string) stream.Event {
	t.Helper()
	ev, err := stream.Decode(stream.Frame{Kind: kind, RawData: data})
	require.NoError(t, err)
	return ev
}

func TestDecodeToken(t *testing.T) {
	ev := decode(t, stream.KindToken, `{"text":"Hel"}`)
	assert.Equal(t, stream.Token{Text: "Hel"}, ev)
}

func TestDecodeToolCall(t *testing.T) {
	ev := decode(t, stream.KindToolCall, `{"id":"call_1","name":"calculator","input":{"expression":"2+2"}}`)
	tc, ok := ev.(stream.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "calculator", tc.Name)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(tc.Input))
}

func TestDecodeToolCallNumericID(t *testing.T) {
	ev := decode(t, stream.KindToolCall, `{"id":1,"name":"calculator","input":{}}`)
	tc, ok := ev.(stream.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "1", tc.ID)
}

func TestDecodeToolCallMissingName(t *testing.T) {
	_, err := stream.Decode(stream.Frame{Kind: stream.KindToolCall, RawData: `{"id":"x"}`})
	assert.ErrorIs(t, err, stream.ErrMalformedFrame)
}

func TestDecodeToolResultOutput(t *testing.T) {
	ev := decode(t, stream.KindToolResult, `{"id":1,"output":4}`)
	tr, ok := ev.(stream.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "1", tr.ID)
	assert.Equal(t, "4", string(tr.Output))
	assert.Empty(t, tr.Err)
}

func TestDecodeToolResultError(t *testing.T) {
	ev := decode(t, stream.KindToolResult, `{"id":"call_1","error":"division by zero"}`)
	tr, ok := ev.(stream.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "division by zero", tr.Err)
	assert.Empty(t, tr.Output)
}

func TestDecodeCitation(t *testing.T) {
	ev := decode(t, stream.KindCitation, `{"document_id":"doc-7","snippet":"..."}`)
	c, ok := ev.(stream.Citation)
	require.True(t, ok)
	assert.JSONEq(t, `{"document_id":"doc-7","snippet":"..."}`, string(c.Source))
}

func TestDecodeCitationInvalidJSON(t *testing.T) {
	_, err := stream.Decode(stream.Frame{Kind: stream.KindCitation, RawData: `{broken`})
	assert.ErrorIs(t, err, stream.ErrMalformedFrame)
}

func TestDecodeUsage(t *testing.T) {
	ev := decode(t, stream.KindUsage, `{"input_tokens":10,"output_tokens":32,"tokens":42}`)
	u, ok := ev.(stream.UsageUpdate)
	require.True(t, ok)
	assert.Equal(t, 42, u.Usage.Tokens)
}

func TestDecodeDoneWithUsage(t *testing.T) {
	ev := decode(t, stream.KindDone, `{"usage":{"tokens":42}}`)
	d, ok := ev.(stream.Done)
	require.True(t, ok)
	require.NotNil(t, d.Usage)
	assert.Equal(t, 42, d.Usage.Tokens)
}

func TestDecodeDoneBare(t *testing.T) {
	ev := decode(t, stream.KindDone, "")
	d, ok := ev.(stream.Done)
	require.True(t, ok)
	assert.Nil(t, d.Usage)
}

func TestDecodeError(t *testing.T) {
	ev := decode(t, stream.KindError, `{"message":"model overloaded"}`)
	assert.Equal(t, stream.ErrorEvent{Message: "model overloaded"}, ev)
}

func TestDecodeErrorWithoutMessageFallsBackToRaw(t *testing.T) {
	ev := decode(t, stream.KindError, `{"code":529}`)
	e, ok := ev.(stream.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, `{"code":529}`, e.Message)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := stream.Decode(stream.Frame{Kind: "heartbeat", RawData: "{}"})
	assert.ErrorIs(t, err, stream.ErrMalformedFrame)
}

func TestDecodeUnparseablePayload(t *testing.T) {
	_, err := stream.Decode(stream.Frame{Kind: stream.KindToken, RawData: "not json"})
	assert.ErrorIs(t, err, stream.ErrMalformedFrame)
}
