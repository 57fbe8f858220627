package testutil

import (
	"testing"

	"github.com/nhle/imap-notify/internal/store"
)

// NewTestHistory creates an in-memory history store with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestHistory(t *testing.T) *store.History {
	t.Helper()

	h, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("creating test history store: %v", err)
	}

	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("closing test history store: %v", err)
		}
	})

	return h
}
