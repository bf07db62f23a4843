package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEmailSender posts to a transactional email API.
type HTTPEmailSender struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewHTTPEmailSender returns a sender for the given API endpoint. An empty
// URL or key produces a sender that reports ErrNotConfigured.
func NewHTTPEmailSender(apiURL, apiKey, from string) *HTTPEmailSender {
	return &HTTPEmailSender{
		apiURL: strings.TrimSpace(apiURL),
		apiKey: strings.TrimSpace(apiKey),
		from:   strings.TrimSpace(from),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (s *HTTPEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if s == nil || s.apiURL == "" || s.apiKey == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(emailPayload{
		From:    s.from,
		To:      to,
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email API status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
