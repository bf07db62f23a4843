package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vetcare/internal/models"
)

// PageInfo is the pagination metadata returned with message pages.
type PageInfo struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
}

// API is the slice of the messaging REST surface the controller consumes.
type API interface {
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID uint, page, limit int) ([]*models.Message, *PageInfo, error)
	SendMessage(ctx context.Context, conversationID uint, content string, attachments models.AttachmentList) (*models.Message, error)
	EditMessage(ctx context.Context, messageID uint, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID uint) error
	IssueTicket(ctx context.Context) (string, error)
}

// HTTPAPI talks to the messaging REST API with a bearer token.
type HTTPAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPAPI creates an API client. baseURL is the server root, without the
// /api prefix.
func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+"/api"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr models.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (a *HTTPAPI) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	if err := a.do(ctx, http.MethodGet, "/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (a *HTTPAPI) ListMessages(ctx context.Context, conversationID uint, page, limit int) ([]*models.Message, *PageInfo, error) {
	var body struct {
		Messages   []*models.Message `json:"messages"`
		Pagination PageInfo          `json:"pagination"`
	}
	path := fmt.Sprintf("/messages/%d?page=%d&limit=%d", conversationID, page, limit)
	if err := a.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, nil, err
	}
	return body.Messages, &body.Pagination, nil
}

func (a *HTTPAPI) SendMessage(ctx context.Context, conversationID uint, content string, attachments models.AttachmentList) (*models.Message, error) {
	req := map[string]interface{}{
		"conversation_id": conversationID,
		"content":         content,
	}
	if len(attachments) > 0 {
		req["attachments"] = attachments
	}
	var msg models.Message
	if err := a.do(ctx, http.MethodPost, "/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *HTTPAPI) EditMessage(ctx context.Context, messageID uint, content string) (*models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/messages/%d", messageID)
	if err := a.do(ctx, http.MethodPut, path, map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *HTTPAPI) DeleteMessage(ctx context.Context, messageID uint) error {
	return a.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), nil, nil)
}

func (a *HTTPAPI) IssueTicket(ctx context.Context) (string, error) {
	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := a.do(ctx, http.MethodPost, "/ws/ticket", nil, &body); err != nil {
		return "", err
	}
	return body.Ticket, nil
}
