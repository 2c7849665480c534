// Package session coordinates one conversation's streaming turns: it opens
// the transport, pumps frames through the parser into the reducer, publishes
// snapshots to observers, and handles user-initiated cancellation.
package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arkadyv/chatloom/internal/message"
	"github.com/arkadyv/chatloom/internal/stream"
	"github.com/arkadyv/chatloom/internal/transport"
)

// ErrStreamActive rejects a send while a message is still streaming.
// At most one stream is active per conversation; callers wait for the
// current one to reach a terminal state.
var ErrStreamActive = errors.New("a message is already streaming for this conversation")

// Opener abstracts the transport so tests can feed canned streams.
// *transport.Client is the production implementation.
type Opener interface {
	Open(ctx context.Context, req transport.StreamRequest) (io.ReadCloser, error)
}

// FinishFunc receives the frozen message once it reaches a terminal state.
// Wire persistence here; the engine itself stores nothing.
type FinishFunc func(message.Message)

// Session owns the streaming lifecycle of a single conversation. Sessions
// for different conversations are fully independent.
type Session struct {
	conversationID string
	opener         Opener
	finish         FinishFunc

	mu      sync.Mutex
	current *run
}

// run ties together one stream's reducer, handle and transport cancel.
// A fresh run is created per send; a finished run is never reused.
type run struct {
	reducer *message.Reducer
	stream  *Stream
	cancel  context.CancelFunc
}

func New(conversationID string, opener Opener, finish FinishFunc) *Session {
	return &Session{
		conversationID: conversationID,
		opener:         opener,
		finish:         finish,
	}
}

// Send opens a new transport stream for the given user content and returns
// a handle whose snapshots track the assembling assistant message. Fails
// with ErrStreamActive if a stream is already live.
func (s *Session) Send(ctx context.Context, content string, attachmentIDs []string) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		cancel()
		return nil, ErrStreamActive
	}
	r := &run{
		reducer: message.NewReducer(s.conversationID),
		stream:  newStream(),
		cancel:  cancel,
	}
	s.current = r
	s.mu.Unlock()

	body, err := s.opener.Open(streamCtx, transport.StreamRequest{
		ConversationID: s.conversationID,
		Content:        content,
		AttachmentIDs:  attachmentIDs,
	})
	if err != nil {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		cancel()
		return nil, err
	}

	r.stream.publish(r.reducer.Snapshot())
	go s.readLoop(r, body)

	return r.stream, nil
}

// Stop aborts the active stream, if any. Idempotent: calling it twice, or
// while idle or already terminal, is a no-op. Cancellation is applied
// synchronously so the terminal transition is observable on return, and it
// never undoes content, tool results or citations that already streamed in.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.current
	if r == nil {
		s.mu.Unlock()
		return
	}
	snap := r.reducer.Cancel()
	s.current = nil
	r.stream.publish(snap)
	s.mu.Unlock()

	// Sever the transport; the read loop unwinds and finalizes.
	r.cancel()
}

// IsStreaming reports whether a message is currently streaming.
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// readLoop is the single consumer of the transport body. Frames are applied
// strictly in receipt order; nothing here runs concurrently with another
// event for the same run.
func (s *Session) readLoop(r *run, body io.ReadCloser) {
	defer s.finalize(r, body)

	parser := stream.NewParser()
	buf := make([]byte, 32*1024)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, f := range parser.ParseChunk(buf[:n]) {
				ev, decodeErr := stream.Decode(f)
				if decodeErr != nil {
					log.Debug().
						Err(decodeErr).
						Str("conversation_id", s.conversationID).
						Int("frame", f.Index).
						Msg("dropped malformed frame")
					continue
				}
				if s.apply(r, ev) {
					return
				}
			}
		}
		if err != nil {
			// Stream ended without a terminal frame: a transport failure,
			// unless cancellation already froze the message.
			detail := "transport: stream closed before completion"
			if !errors.Is(err, io.EOF) {
				detail = "transport: " + err.Error()
			}
			s.apply(r, stream.ErrorEvent{Message: detail})
			return
		}
	}
}

// apply folds one event into the run's reducer and publishes the snapshot.
// Returns true once the run is finished (terminal, stopped, or superseded).
func (s *Session) apply(r *run, ev stream.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != r {
		// Stopped out from under us; the frozen message already published.
		return true
	}

	snap, err := r.reducer.Apply(ev)
	if err != nil {
		log.Warn().
			Err(err).
			Str("conversation_id", s.conversationID).
			Str("message_id", snap.ID.String()).
			Msg("rejected frame")
		return snap.Terminal()
	}

	r.stream.publish(snap)
	if snap.Terminal() {
		s.current = nil
		return true
	}
	return false
}

func (s *Session) finalize(r *run, body io.ReadCloser) {
	body.Close()
	r.cancel()

	s.mu.Lock()
	frozen := r.reducer.Snapshot()
	rejected := r.reducer.Rejected()
	if s.current == r {
		s.current = nil
	}
	s.mu.Unlock()

	if s.finish != nil {
		s.finish(frozen)
	}
	r.stream.close()

	log.Info().
		Str("conversation_id", s.conversationID).
		Str("message_id", frozen.ID.String()).
		Str("outcome", string(frozen.Outcome)).
		Int("fragments", len(frozen.Fragments)).
		Int("tool_calls", len(frozen.ToolCalls)).
		Int("citations", len(frozen.Citations)).
		Int("rejected_frames", rejected).
		Msg("stream finished")
}
