package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails
// verification against the endpoint secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// signatureTolerance bounds how far a signed timestamp may drift from the
// current time before the payload is treated as a replay. Matches Stripe's
// reference tolerance.
const signatureTolerance = 5 * time.Minute

// timeNow is swapped in tests.
var timeNow = time.Now

// VerifySignature checks a Stripe-Signature header against the payload:
// the header carries a timestamp and one or more v1 signatures, each an
// HMAC-SHA256 of "<timestamp>.<payload>" keyed with the endpoint secret.
// Timestamps outside the tolerance window are rejected even when the
// signature itself is valid.
func VerifySignature(payload []byte, sigHeader, secret string) error {
	sigHeader = strings.TrimSpace(sigHeader)
	if sigHeader == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if drift := timeNow().Sub(time.Unix(ts, 0)); drift > signatureTolerance || drift < -signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// checkoutEvent mirrors the slice of a Stripe event the webhook needs:
// data.object must be a checkout.session whose metadata carries the
// purchase ID.
type checkoutEvent struct {
	Data struct {
		Object struct {
			Object   string            `json:"object"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ExtractPurchaseID pulls the purchase ID out of a checkout-session event
// payload. It returns "" when the event is not a checkout session or
// carries no purchase ID; malformed JSON is an error.
func ExtractPurchaseID(payload []byte) (string, error) {
	var ev checkoutEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", fmt.Errorf("decode event: %w", err)
	}
	if ev.Data.Object.Object != "checkout.session" {
		return "", nil
	}
	return ev.Data.Object.Metadata["purchaseId"], nil
}
