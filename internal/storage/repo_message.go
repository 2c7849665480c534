package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRecord is the flattened archival form of a frozen assistant message.
type MessageRecord struct {
	ID             uuid.UUID
	ConversationID string
	Role           string
	Content        string
	Outcome        string
	ErrorDetail    string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	RejectedFrames int
	CompletedAt    time.Time
}

// ToolCallRecord is one tool invocation row, ordered by position within the
// message. Unresolved calls are archived with status running as-is.
type ToolCallRecord struct {
	ToolID string
	Name   string
	Input  json.RawMessage
	Output json.RawMessage
	Error  string
	Status string
}

func InsertMessageJob(r *MessageRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, pool *pgxpool.Pool) error {
		_, err := pool.Exec(ctx, `
			INSERT INTO messages (
				id, conversation_id, role, content, outcome, error_detail,
				input_tokens, output_tokens, total_tokens, rejected_frames, completed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			r.ID, r.ConversationID, r.Role, r.Content, r.Outcome, nilIfEmpty(r.ErrorDetail),
			r.InputTokens, r.OutputTokens, r.TotalTokens, r.RejectedFrames, r.CompletedAt,
		)
		return err
	})
}

// InsertToolCallsJob batch-inserts tool call rows using the COPY protocol.
func InsertToolCallsJob(messageID uuid.UUID, calls []ToolCallRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, pool *pgxpool.Pool) error {
		if len(calls) == 0 {
			return nil
		}
		rows := make([][]interface{}, len(calls))
		for i, tc := range calls {
			rows[i] = []interface{}{
				messageID,
				i,
				tc.ToolID,
				tc.Name,
				nilIfEmptyBytes(tc.Input),
				nilIfEmptyBytes(tc.Output),
				nilIfEmpty(tc.Error),
				tc.Status,
			}
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"tool_calls"},
			[]string{"message_id", "position", "tool_id", "name", "input", "output", "error", "status"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

// InsertCitationsJob batch-inserts citation rows in arrival order.
func InsertCitationsJob(messageID uuid.UUID, citations []json.RawMessage) WriteJob {
	return WriteJobFunc(func(ctx context.Context, pool *pgxpool.Pool) error {
		if len(citations) == 0 {
			return nil
		}
		rows := make([][]interface{}, len(citations))
		for i, c := range citations {
			rows[i] = []interface{}{messageID, i, []byte(c)}
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"citations"},
			[]string{"message_id", "position", "source"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfEmptyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
