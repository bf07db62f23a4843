package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSMSSender posts form-encoded requests to an SMS gateway.
type HTTPSMSSender struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewHTTPSMSSender returns a sender for the given gateway. An empty URL or
// key produces a sender that reports ErrNotConfigured.
func NewHTTPSMSSender(apiURL, apiKey, from string) *HTTPSMSSender {
	return &HTTPSMSSender{
		apiURL: strings.TrimSpace(apiURL),
		apiKey: strings.TrimSpace(apiKey),
		from:   strings.TrimSpace(from),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSMSSender) Send(ctx context.Context, phone, message string) error {
	if s == nil || s.apiURL == "" || s.apiKey == "" {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("api_key", s.apiKey)
	form.Set("to", phone)
	form.Set("msg", message)
	if s.from != "" {
		form.Set("from", s.from)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
