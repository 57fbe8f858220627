package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/imap-notify/internal/store"
	"github.com/nhle/imap-notify/tests/testutil"
)

func TestRecordAndListCycles(t *testing.T) {
	h := testutil.NewTestHistory(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	cycles := []store.Cycle{
		{Host: "mail.example.com", Port: 143, Outcome: "timed-out", Attempts: 1, StartedAt: started, FinishedAt: started.Add(15 * time.Minute)},
		{Host: "mail.example.com", Port: 143, Outcome: "change-detected", Attempts: 3, StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Minute)},
	}
	for _, c := range cycles {
		if err := h.RecordCycle(ctx, c); err != nil {
			t.Fatalf("RecordCycle() error: %v", err)
		}
	}

	got, err := h.RecentCycles(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCycles() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentCycles() returned %d cycles, want 2", len(got))
	}

	// Most recently finished first.
	if got[0].Outcome != "change-detected" {
		t.Errorf("got[0].Outcome = %q, want change-detected", got[0].Outcome)
	}
	if got[0].Attempts != 3 {
		t.Errorf("got[0].Attempts = %d, want 3", got[0].Attempts)
	}
	if got[0].ID == "" {
		t.Error("ID was not generated")
	}
	if got[1].Outcome != "timed-out" {
		t.Errorf("got[1].Outcome = %q, want timed-out", got[1].Outcome)
	}
}

func TestRecentCyclesLimit(t *testing.T) {
	h := testutil.NewTestHistory(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		c := store.Cycle{
			Host:       "mail.example.com",
			Port:       993,
			Outcome:    "timed-out",
			Attempts:   1,
			StartedAt:  now.Add(time.Duration(i) * time.Hour),
			FinishedAt: now.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := h.RecordCycle(ctx, c); err != nil {
			t.Fatalf("RecordCycle() error: %v", err)
		}
	}

	got, err := h.RecentCycles(ctx, 2)
	if err != nil {
		t.Fatalf("RecentCycles() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("RecentCycles(2) returned %d cycles", len(got))
	}
}
