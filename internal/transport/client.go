// Package transport opens the server-sent event stream for a new message
// turn. It knows nothing about frames or reducers: it hands back the raw
// body and the engine does the rest.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StreamRequest initiates one streamed assistant turn.
type StreamRequest struct {
	ConversationID string   `json:"-"`
	Content        string   `json:"content"`
	AttachmentIDs  []string `json:"attachment_ids,omitempty"`
}

// Client opens event streams against the chat backend.
type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func New(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		client: &http.Client{
			// No timeout — streaming responses can be long-lived
			Timeout: 0,
			// Don't follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Open POSTs the message and returns the response body carrying the event
// stream. Canceling ctx aborts the connection mid-stream; that is the only
// way to stop a stream short of a terminal frame.
func (c *Client) Open(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/conversations/%s/messages",
		c.baseURL, url.PathEscape(req.ConversationID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	// Identity encoding so frames arrive as sent, not buffered by a
	// compression layer.
	httpReq.Header.Set("Accept-Encoding", "identity")
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()

		var parsed struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(errBody, &parsed) == nil && parsed.Error != "" {
			return nil, fmt.Errorf("stream request failed with status %d: %s", resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("stream request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	return resp.Body, nil
}
