// Package telemetry implements the SDK's opt-in local trace store
// (Config.EnableTelemetry), adapted from the teacher's Postgres-backed
// internal/trace/store.go onto github.com/mattn/go-sqlite3: an on-device
// SDK has no server-side Postgres to talk to, so runs and spans are kept
// in an embedded file next to the model directory instead.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" driver

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

// Run represents one voice-pipeline turn or engine operation.
type Run struct {
	ID         string
	StartedAt  time.Time
	DurationMs float64
	Input      string
	Output     string
	Status     string
}

// Span represents one stage within a Run (STT, LLM, TTS, download, etc).
type Span struct {
	ID         string
	RunID      string
	Name       string
	StartedAt  time.Time
	DurationMs float64
	Status     string
	Error      string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	duration_ms REAL,
	input TEXT,
	output TEXT,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS spans (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	duration_ms REAL,
	status TEXT NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_spans_run_id ON spans(run_id);
`

const maxRuns = 500

// Store persists runs and spans to a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite telemetry store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, aierr.New(aierr.StorageReadError, "could not open telemetry store", err.Error())
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, aierr.New(aierr.StorageReadError, "could not connect to telemetry store", err.Error())
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, aierr.New(aierr.StorageReadError, "failed applying telemetry schema", err.Error())
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordRun inserts a completed run and prunes old rows beyond maxRuns.
func (s *Store) RecordRun(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, duration_ms, input, output, status) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC(), r.DurationMs, r.Input, r.Output, r.Status,
	)
	if err != nil {
		return fmt.Errorf("telemetry: record run: %w", err)
	}
	_, err = s.db.Exec(
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`,
		maxRuns,
	)
	if err != nil {
		return fmt.Errorf("telemetry: prune runs: %w", err)
	}
	return nil
}

// RecordSpan inserts one stage span under an existing run.
func (s *Store) RecordSpan(sp Span) error {
	_, err := s.db.Exec(
		`INSERT INTO spans (id, run_id, name, started_at, duration_ms, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.RunID, sp.Name, sp.StartedAt.UTC(), sp.DurationMs, sp.Status, sp.Error,
	)
	if err != nil {
		return fmt.Errorf("telemetry: record span: %w", err)
	}
	return nil
}

// SpansForRun returns every span recorded under runID, oldest first.
func (s *Store) SpansForRun(runID string) ([]Span, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, name, started_at, duration_ms, status, error FROM spans WHERE run_id = ? ORDER BY started_at ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query spans: %w", err)
	}
	defer rows.Close()

	var out []Span
	for rows.Next() {
		var sp Span
		if err := rows.Scan(&sp.ID, &sp.RunID, &sp.Name, &sp.StartedAt, &sp.DurationMs, &sp.Status, &sp.Error); err != nil {
			return nil, fmt.Errorf("telemetry: scan span: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
