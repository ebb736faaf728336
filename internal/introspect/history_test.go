package introspect

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/gowe/internal/scheduler"
	"github.com/me/gowe/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHistoryStoreRecordsAndReplays(t *testing.T) {
	h, err := NewHistoryStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	if err := h.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	snap := scheduler.Snapshot{
		GraphCount:   2,
		StaleCount:   1,
		PresentCount: 1,
		ComputeCount: 3,
		Graphs: []scheduler.GraphSnapshot{
			{Device: model.DeviceCPU, Blocks: []string{"a:0", "b:0"}},
		},
	}
	at := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	if err := h.Record(ctx, at, snap); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.GraphCount != 2 || e.StaleCount != 1 || e.ComputeCount != 3 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if !e.RecordedAt.Equal(at) {
		t.Fatalf("RecordedAt = %v, want %v", e.RecordedAt, at)
	}
	if len(e.Graphs) != 1 || e.Graphs[0].Device != "CPU" || len(e.Graphs[0].Blocks) != 2 {
		t.Fatalf("unexpected graph rows: %+v", e.Graphs)
	}
}

func TestHistoryStoreRecentRespectsLimitAndOrder(t *testing.T) {
	h, err := NewHistoryStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	if err := h.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	base := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := scheduler.Snapshot{GraphCount: i}
		if err := h.Record(ctx, base.Add(time.Duration(i)*time.Second), snap); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}

	entries, err := h.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].GraphCount != 4 || entries[1].GraphCount != 3 || entries[2].GraphCount != 2 {
		t.Fatalf("expected newest-first order, got %+v", entries)
	}
}
