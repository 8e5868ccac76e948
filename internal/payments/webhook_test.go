package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signPayload(t *testing.T, payload []byte, secret, timestamp string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// fixClock pins the verifier's clock to the given unix second.
func fixClock(t *testing.T, unix int64) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return time.Unix(unix, 0) }
	t.Cleanup(func() { timeNow = orig })
}

func TestVerifySignature(t *testing.T) {
	fixClock(t, 1724800000)
	payload := []byte(`{"data":{"object":{"object":"checkout.session"}}}`)
	const secret = "whsec_test"
	sig := signPayload(t, payload, secret, "1724800000")

	header := "t=1724800000,v1=" + sig
	if err := VerifySignature(payload, header, secret); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}

	// Any v1 candidate matching is enough.
	multi := "t=1724800000,v1=deadbeef,v1=" + sig
	if err := VerifySignature(payload, multi, secret); err != nil {
		t.Fatalf("VerifySignature (multiple v1): %v", err)
	}
}

func TestVerifySignature_Rejects(t *testing.T) {
	fixClock(t, 1724800000)
	payload := []byte(`{}`)
	const secret = "whsec_test"
	sig := signPayload(t, payload, secret, "1724800000")

	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"missing timestamp", "v1=" + sig},
		{"missing signature", "t=1724800000"},
		{"non-numeric timestamp", "t=yesterday,v1=" + sig},
		{"wrong signature", "t=1724800000,v1=deadbeef"},
		{"wrong timestamp", "t=1724800060,v1=" + sig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifySignature(payload, tt.header, secret); err == nil {
				t.Error("expected rejection")
			}
		})
	}

	// Tampered payload.
	if err := VerifySignature([]byte(`{"x":1}`), "t=1724800000,v1="+sig, secret); err == nil {
		t.Error("expected rejection of tampered payload")
	}
}

func TestVerifySignature_ReplayWindow(t *testing.T) {
	payload := []byte(`{"data":{"object":{"object":"checkout.session"}}}`)
	const secret = "whsec_test"
	const signedAt = int64(1724800000)
	sig := signPayload(t, payload, secret, "1724800000")
	header := "t=1724800000,v1=" + sig

	// Inside the window the signature still verifies.
	fixClock(t, signedAt+4*60)
	if err := VerifySignature(payload, header, secret); err != nil {
		t.Fatalf("VerifySignature within tolerance: %v", err)
	}

	// A captured payload replayed after the window is rejected even though
	// the signature itself is valid.
	fixClock(t, signedAt+6*60)
	if err := VerifySignature(payload, header, secret); err == nil {
		t.Error("expected rejection of stale timestamp")
	}

	// Timestamps from the future are equally out of bounds.
	fixClock(t, signedAt-6*60)
	if err := VerifySignature(payload, header, secret); err == nil {
		t.Error("expected rejection of future timestamp")
	}
}

func TestExtractPurchaseID(t *testing.T) {
	payload := []byte(`{"data":{"object":{"object":"checkout.session","metadata":{"purchaseId":"purchase-1"}}}}`)
	id, err := ExtractPurchaseID(payload)
	if err != nil {
		t.Fatalf("ExtractPurchaseID: %v", err)
	}
	if id != "purchase-1" {
		t.Errorf("id = %q, want %q", id, "purchase-1")
	}
}

func TestExtractPurchaseID_OtherEvents(t *testing.T) {
	// Events that are not checkout sessions, or sessions without metadata,
	// yield an empty ID without error.
	for _, payload := range []string{
		`{"data":{"object":{"object":"payment_intent","metadata":{"purchaseId":"p-1"}}}}`,
		`{"data":{"object":{"object":"checkout.session"}}}`,
		`{}`,
	} {
		id, err := ExtractPurchaseID([]byte(payload))
		if err != nil {
			t.Fatalf("ExtractPurchaseID(%s): %v", payload, err)
		}
		if id != "" {
			t.Errorf("ExtractPurchaseID(%s) = %q, want empty", payload, id)
		}
	}

	if _, err := ExtractPurchaseID([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}
