package token

import (
	"context"
	"testing"
	"time"
)

func TestGenerateAndVerify(t *testing.T) {
	svc := New("test-signing-key", "sorteo.mx", nil)

	raw, err := svc.Generate("user-1", "user-1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	id, err := svc.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UID != "user-1" {
		t.Errorf("UID = %q, want %q", id.UID, "user-1")
	}
	if id.Email != "user-1@example.com" {
		t.Errorf("Email = %q, want %q", id.Email, "user-1@example.com")
	}
}

func TestVerify_Rejects(t *testing.T) {
	svc := New("test-signing-key", "sorteo.mx", nil)

	expired, err := svc.Generate("user-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	otherKey := New("different-key", "sorteo.mx", nil)
	foreign, err := otherKey.Generate("user-1", "", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong key", foreign},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(context.Background(), tt.token); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}
