// Package archive is the durable-storage collaborator for frozen messages.
// The session finish hook publishes each terminal message onto the JetStream
// work queue; the consumer drains the queue into Postgres through the batch
// writer. A crash between publish and flush loses at most the buffered tail,
// never the live stream.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/arkadyv/chatloom/internal/jetstream"
	"github.com/arkadyv/chatloom/internal/message"
	"github.com/arkadyv/chatloom/internal/storage"
)

const durableName = "chatloom-archive"

type Archiver struct {
	js     nats.JetStreamContext
	writer *storage.BatchWriter
}

func New(js nats.JetStreamContext, writer *storage.BatchWriter) *Archiver {
	return &Archiver{js: js, writer: writer}
}

// Publish enqueues a frozen message for archival. Used as the session
// finish hook; errors are logged, not propagated, because the stream has
// already completed from the user's point of view.
func (a *Archiver) Publish(msg message.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to marshal message for archival")
		return
	}
	if _, err := a.js.Publish(jetstream.MessageSubject(msg.ConversationID), payload); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to publish message for archival")
	}
}

// StartConsumer drains the archival queue until ctx is done.
func (a *Archiver) StartConsumer(ctx context.Context) error {
	sub, err := a.js.PullSubscribe(jetstream.MessageSubjects, durableName)
	if err != nil {
		return fmt.Errorf("subscribe to archival queue: %w", err)
	}
	defer sub.Drain()

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := sub.Fetch(16, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("archival fetch failed")
			continue
		}

		for _, m := range msgs {
			a.archive(m.Data)
			m.Ack()
		}
	}
}

func (a *Archiver) archive(data []byte) {
	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal archived message")
		return
	}

	rec := &storage.MessageRecord{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content(),
		Outcome:        string(msg.Outcome),
		ErrorDetail:    msg.ErrorDetail,
		RejectedFrames: msg.RejectedFrames,
		CompletedAt:    msg.CompletedAt,
	}
	if msg.Usage != nil {
		rec.InputTokens = msg.Usage.InputTokens
		rec.OutputTokens = msg.Usage.OutputTokens
		rec.TotalTokens = msg.Usage.Tokens
	}
	a.writer.Enqueue(storage.InsertMessageJob(rec))

	if len(msg.ToolCalls) > 0 {
		calls := make([]storage.ToolCallRecord, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			calls[i] = storage.ToolCallRecord{
				ToolID: tc.ID,
				Name:   tc.Name,
				Input:  tc.Input,
				Output: tc.Output,
				Error:  tc.Error,
				Status: string(tc.Status),
			}
		}
		a.writer.Enqueue(storage.InsertToolCallsJob(msg.ID, calls))
	}

	if len(msg.Citations) > 0 {
		a.writer.Enqueue(storage.InsertCitationsJob(msg.ID, msg.Citations))
	}

	log.Debug().
		Str("message_id", msg.ID.String()).
		Str("conversation_id", msg.ConversationID).
		Str("outcome", string(msg.Outcome)).
		Int("tool_calls", len(msg.ToolCalls)).
		Int("citations", len(msg.Citations)).
		Int("total_tokens", rec.TotalTokens).
		Msg("message archived")
}
