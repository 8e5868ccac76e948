// Package payments talks to Stripe over its REST API using stdlib
// net/http only, with no SDK dependency. The surface is small:
// create a checkout session for a pending purchase, and verify/parse the
// webhook events Stripe sends back.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Client creates Stripe checkout sessions.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client ready to use. secretKey is the Stripe secret
// key ("sk_...").
func NewClient(secretKey string) *Client {
	return &Client{
		secretKey:  secretKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SessionParams describes one checkout session: a single line item priced
// in MXN cents, plus the purchase ID carried in the session metadata so the
// webhook can reconcile the payment later.
type SessionParams struct {
	ProductName     string
	UnitAmountCents int64
	Quantity        int
	SuccessURL      string
	CancelURL       string
	PurchaseID      string
}

// sessionResponse captures just the fields we care about.
type sessionResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession creates a payment-mode checkout session and
// returns the hosted payment page URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (string, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("payment_method_types[1]", "oxxo")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("line_items[0][price_data][currency]", "mxn")
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.UnitAmountCents, 10))
	form.Set("line_items[0][quantity]", strconv.Itoa(p.Quantity))
	form.Set("metadata[purchaseId]", p.PurchaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if session.Error != nil {
		return "", fmt.Errorf("stripe error %s: %s", session.Error.Type, session.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("stripe returned %d: %s", resp.StatusCode, string(body))
	}
	if session.URL == "" {
		return "", fmt.Errorf("stripe session %s has no url", session.ID)
	}
	return session.URL, nil
}
