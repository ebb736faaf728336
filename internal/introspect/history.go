// Package introspect persists a rolling history of scheduler rebuilds and
// exposes it over HTTP for a host debug panel (spec §4.D draw_debug and
// its history companion). Grounded on the teacher's internal/store
// (modernc.org/sqlite-backed CRUD, WAL pragma, idempotent migrate) and
// internal/server (chi.Router-based HTTP surface).
package introspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/gowe/internal/scheduler"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rebuild_history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at   TEXT NOT NULL,
		graph_count   INTEGER NOT NULL,
		stale_count   INTEGER NOT NULL,
		present_count INTEGER NOT NULL,
		compute_count INTEGER NOT NULL,
		graphs        TEXT NOT NULL DEFAULT '[]'
	)`,
}

// HistoryStore records scheduler rebuild snapshots over time. Every
// AddModule/RemoveModule rebuild is a candidate event; callers decide when
// to call Record (typically once per rebuild, not once per frame).
type HistoryStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewHistoryStore opens (or creates) a SQLite database at dbPath. Use
// ":memory:" for tests.
func NewHistoryStore(dbPath string, logger *slog.Logger) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	return &HistoryStore{db: db, logger: logger.With("component", "introspect")}, nil
}

func (h *HistoryStore) Close() error { return h.db.Close() }

// Migrate creates the rebuild_history table if it does not already exist.
func (h *HistoryStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := h.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// graphRow mirrors scheduler.GraphSnapshot for JSON storage.
type graphRow struct {
	Device string   `json:"device"`
	Blocks []string `json:"blocks"`
}

// Record persists one point-in-time scheduler.Snapshot, stamped with the
// given time (callers pass time.Now(), kept as a parameter so tests can
// control it).
func (h *HistoryStore) Record(ctx context.Context, at time.Time, snap scheduler.Snapshot) error {
	rows := make([]graphRow, len(snap.Graphs))
	for i, g := range snap.Graphs {
		rows[i] = graphRow{Device: g.Device.String(), Blocks: g.Blocks}
	}
	graphsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal graph snapshot: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO rebuild_history (recorded_at, graph_count, stale_count, present_count, compute_count, graphs)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), snap.GraphCount, snap.StaleCount, snap.PresentCount, snap.ComputeCount, string(graphsJSON))
	if err != nil {
		return fmt.Errorf("insert rebuild history: %w", err)
	}
	h.logger.Debug("rebuild recorded", "graphs", snap.GraphCount, "stale", snap.StaleCount)
	return nil
}

// Entry is one row of recorded history, in the shape the debug HTTP
// surface renders.
type Entry struct {
	RecordedAt   time.Time  `json:"recorded_at"`
	GraphCount   int        `json:"graph_count"`
	StaleCount   int        `json:"stale_count"`
	PresentCount int        `json:"present_count"`
	ComputeCount int        `json:"compute_count"`
	Graphs       []graphRow `json:"graphs"`
}

// Recent returns the most recent limit history entries, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT recorded_at, graph_count, stale_count, present_count, compute_count, graphs
		 FROM rebuild_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rebuild history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt, graphsJSON string
		if err := rows.Scan(&recordedAt, &e.GraphCount, &e.StaleCount, &e.PresentCount, &e.ComputeCount, &graphsJSON); err != nil {
			return nil, fmt.Errorf("scan rebuild history row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		e.RecordedAt = parsed
		if err := json.Unmarshal([]byte(graphsJSON), &e.Graphs); err != nil {
			return nil, fmt.Errorf("unmarshal graphs: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
