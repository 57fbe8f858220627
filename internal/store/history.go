// Package store persists a small history of completed wait cycles to a
// local SQLite database, so a supervisor-driven setup can be inspected
// after the fact: when the process connected, how many attempts it took,
// and how each cycle ended.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Cycle is one recorded wait cycle.
type Cycle struct {
	ID         string    `db:"id"`
	Host       string    `db:"host"`
	Port       int       `db:"port"`
	Outcome    string    `db:"outcome"`
	Attempts   int       `db:"attempts"`
	LastError  string    `db:"last_error"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// History is a SQLite-backed log of wait cycles.
type History struct {
	db *sqlx.DB
}

// Open opens (or creates) the history database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func Open(dbPath string) (*History, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	h := &History{db: db}
	if err := h.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return h, nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// RecordCycle inserts one finished cycle. Generates a UUID if ID is empty.
func (h *History) RecordCycle(ctx context.Context, c Cycle) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO wait_cycles (
			id, host, port, outcome, attempts, last_error,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Host, c.Port, c.Outcome, c.Attempts, c.LastError,
		c.StartedAt.UTC(), c.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording cycle: %w", err)
	}
	return nil
}

// RecentCycles returns up to limit cycles, most recently finished first.
func (h *History) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}

	var cycles []Cycle
	err := h.db.SelectContext(ctx, &cycles, `
		SELECT id, host, port, outcome, attempts, last_error,
		       started_at, finished_at
		FROM wait_cycles
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	return cycles, nil
}
