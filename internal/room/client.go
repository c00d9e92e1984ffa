// Package room talks to the external video-session provider: creating
// conversation rooms, reading conversation logs, and ending conversations.
package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// Client is an HTTP client for the conversation provider API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// Config holds provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// CreateRequest is the payload for requesting a new conversation room.
type CreateRequest struct {
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	CourseTopic   string `json:"course_topic"`
	ModuleSummary string `json:"module_summary"`
	Mode          string `json:"mode"`
	PersonaID     string `json:"persona_id"`
}

// Conversation is the provider's description of a created room.
type Conversation struct {
	ConversationID string `json:"conversation_id"`
	RoomHandle     string `json:"room_handle"`
	PersonaID      string `json:"persona_id"`
	Status         string `json:"status"`
}

// conversationLog is the provider's transcript payload for a conversation.
type conversationLog struct {
	Status  string                     `json:"status"`
	Entries []model.RawTranscriptEntry `json:"entries"`
}

// CreateConversation requests a new room. Any provider rejection is
// returned as-is for the caller to wrap; no local state is touched.
func (c *Client) CreateConversation(ctx context.Context, req CreateRequest) (*Conversation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/conversations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("create conversation: provider returned %s", res.Status)
	}

	var conv Conversation
	if err := json.NewDecoder(res.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if conv.ConversationID == "" || conv.RoomHandle == "" {
		return nil, fmt.Errorf("create conversation: incomplete response (id=%q handle=%q)", conv.ConversationID, conv.RoomHandle)
	}
	return &conv, nil
}

// FetchLog reads the conversation log once. ready reports whether the
// provider has marked the transcript complete.
func (c *Client) FetchLog(ctx context.Context, conversationID string) (entries []model.RawTranscriptEntry, ready bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/conversations/"+conversationID+"/transcript", nil)
	if err != nil {
		return nil, false, err
	}
	c.setHeaders(httpReq)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("fetch transcript: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.StatusCode/100 != 2 {
		return nil, false, fmt.Errorf("fetch transcript: provider returned %s", res.Status)
	}

	var lg conversationLog
	if err := json.NewDecoder(res.Body).Decode(&lg); err != nil {
		return nil, false, fmt.Errorf("decode transcript: %w", err)
	}
	return lg.Entries, lg.Status == "ready" && len(lg.Entries) > 0, nil
}

// EndConversation sends the termination beacon for a conversation. It is
// fire-and-forget: the request runs on its own goroutine with a short
// deadline detached from the caller, and failures are only logged.
func (c *Client) EndConversation(conversationID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		body, _ := json.Marshal(map[string]string{"conversation_id": conversationID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/conversations/"+conversationID+"/end", bytes.NewReader(body))
		if err != nil {
			return
		}
		c.setHeaders(req)

		res, err := c.http.Do(req)
		if err != nil {
			slog.Debug("termination beacon failed", "conversation_id", conversationID, "error", err)
			return
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
