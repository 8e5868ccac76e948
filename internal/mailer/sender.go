package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultResendBaseURL = "https://api.resend.com"

// Sender is the interface any email backend must implement. Keeping it
// minimal means backends are trivially swappable without changing the Kafka
// consumer.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender sends outbound email via the Resend REST API using stdlib
// net/http only, no SDK dependency.
type ResendSender struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewResendSender creates a ResendSender ready to use.
//
// apiKey is the Resend API key ("re_..."). from is the verified sender
// address, e.g. "rifas@sorteo.mx".
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		apiKey:     apiKey,
		from:       from,
		baseURL:    defaultResendBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// resendRequest is the JSON body sent to POST /emails.
type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// resendResponse captures just the fields we care about for logging.
type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send dispatches msg to the Resend API. It returns a non-nil error if the
// HTTP request fails or Resend returns a non-2xx status. The caller (Kafka
// consumer) decides whether to retry or route to the DLQ.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var re resendResponse
		if err := json.Unmarshal(respBody, &re); err == nil && re.Message != "" {
			return fmt.Errorf("resend returned %d: %s", resp.StatusCode, re.Message)
		}
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
