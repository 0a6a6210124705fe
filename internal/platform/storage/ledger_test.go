package storage

import (
	"context"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := Open("file::memory:?cache=shared&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return NewLedger(db)
}

func TestLedger_RecordAndRollingUsage(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	entries := []UsageRecord{
		{UserID: "u1", Service: "transcription", Amount: 2.5, Plan: "free"},
		{UserID: "u1", Service: "transcription", Amount: 1.25, Plan: "free"},
		{UserID: "u1", Service: "translation", Amount: 9, Plan: "free"},
		{UserID: "u2", Service: "transcription", Amount: 4, Plan: "basic"},
	}
	for i := range entries {
		if err := ledger.RecordUsage(ctx, &entries[i]); err != nil {
			t.Fatalf("RecordUsage error: %v", err)
		}
	}

	total, err := ledger.RollingUsage(ctx, "u1", "transcription", time.Hour)
	if err != nil {
		t.Fatalf("RollingUsage error: %v", err)
	}
	if total != 3.75 {
		t.Fatalf("expected 3.75 credits, got %v", total)
	}
}

func TestLedger_RollingUsageExcludesOldEntries(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	old := UsageRecord{
		UserID:    "u3",
		Service:   "transcription",
		Amount:    10,
		Plan:      "free",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	if err := ledger.RecordUsage(ctx, &old); err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	recent := UsageRecord{UserID: "u3", Service: "transcription", Amount: 1, Plan: "free"}
	if err := ledger.RecordUsage(ctx, &recent); err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}

	total, err := ledger.RollingUsage(ctx, "u3", "transcription", 24*time.Hour)
	if err != nil {
		t.Fatalf("RollingUsage error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected old entries outside the window to be excluded, got %v", total)
	}
}

func TestLedger_ListByUser(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	for i := 0; i < 3; i++ {
		rec := UsageRecord{UserID: "u4", Service: "transcription", Amount: float64(i + 1), Plan: "free"}
		if err := ledger.RecordUsage(ctx, &rec); err != nil {
			t.Fatalf("RecordUsage error: %v", err)
		}
	}

	records, err := ledger.ListByUser(ctx, "u4", 2)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
