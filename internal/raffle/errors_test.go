package raffle

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := Errorf(KindNotFound, "the raffle does not exist")
	if kind := KindOf(err); kind != KindNotFound {
		t.Errorf("kind = %v, want %v", kind, KindNotFound)
	}

	// Wrapping must not hide the kind.
	wrapped := fmt.Errorf("handling request: %w", err)
	if kind := KindOf(wrapped); kind != KindNotFound {
		t.Errorf("wrapped kind = %v, want %v", kind, KindNotFound)
	}

	// Unstructured errors default to internal.
	if kind := KindOf(errors.New("boom")); kind != KindInternal {
		t.Errorf("plain error kind = %v, want %v", kind, KindInternal)
	}
}

func TestMessage(t *testing.T) {
	err := Errorf(KindInvalidArgument, "ticket quantity must be at least 1")
	if got := Message(err); got != "ticket quantity must be at least 1" {
		t.Errorf("Message = %q", got)
	}

	// Internal details of unstructured errors must not leak to clients.
	if got := Message(errors.New("pq: connection refused")); got == "pq: connection refused" {
		t.Error("Message leaked an unstructured error verbatim")
	}
}
