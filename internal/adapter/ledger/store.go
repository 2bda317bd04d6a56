// Package ledger keeps a history of runs and their per-slot outcomes in
// SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// timeLayout is fixed width so that timestamps stored as TEXT sort
// chronologically. RFC3339Nano trims trailing fraction zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists run summaries. It implements pipeline.Recorder.
type Store struct {
	db   *sql.DB
	path string
}

// Run is a recorded run.
type Run struct {
	RunID      string
	State      string
	Today      string
	Yesterday  string
	StartedAt  time.Time
	FinishedAt time.Time
	Staged     int
	Archived   int
	Error      string
}

// SlotRecord is a recorded slot outcome.
type SlotRecord struct {
	Slot     string
	Date     string
	Outcome  string
	Sources  int
	Lines    int
	Dropped  int
	Artifact string
	Size     int64
}

// Open creates or connects to the ledger database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores summary and its slot outcomes. Recording the same run again
// replaces the previous record.
func (s *Store) Record(ctx context.Context, summary domain.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var errText any
	if summary.Err != nil {
		errText = summary.Err.Error()
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_slots WHERE run_id = ?`, summary.RunID); err != nil {
		return fmt.Errorf("clear run slots: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (
            run_id, state, today, yesterday, started_at, finished_at, staged, archived, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		string(summary.State),
		summary.Dates.Today.Format(time.DateOnly),
		summary.Dates.Yesterday.Format(time.DateOnly),
		formatTime(summary.StartedAt),
		nullableTime(summary.FinishedAt),
		summary.Staged,
		summary.Archived(),
		errText,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, r := range summary.Slots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_slots (
                run_id, slot, date, outcome, sources, lines, dropped, artifact, size
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID,
			r.Slot.ID(),
			r.Date.Format(time.DateOnly),
			string(r.Outcome),
			r.Sources,
			r.Lines,
			r.Dropped,
			nullableString(r.Artifact),
			r.Size,
		); err != nil {
			return fmt.Errorf("insert slot %s: %w", r.Slot.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// LastRuns returns up to limit runs, most recent first.
func (s *Store) LastRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, state, today, yesterday, started_at, finished_at, staged, archived, error
         FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started           string
			finished, errText sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.State, &r.Today, &r.Yesterday, &started, &finished, &r.Staged, &r.Archived, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		if finished.Valid {
			r.FinishedAt = parseTime(finished.String)
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Slots returns the slot outcomes recorded for runID, in slot order.
func (s *Store) Slots(ctx context.Context, runID string) ([]SlotRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, date, outcome, sources, lines, dropped, artifact, size
         FROM run_slots WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run slots: %w", err)
	}
	defer rows.Close()

	var slots []SlotRecord
	for rows.Next() {
		var (
			r        SlotRecord
			artifact sql.NullString
		)
		if err := rows.Scan(&r.Slot, &r.Date, &r.Outcome, &r.Sources, &r.Lines, &r.Dropped, &artifact, &r.Size); err != nil {
			return nil, fmt.Errorf("scan run slot: %w", err)
		}
		r.Artifact = artifact.String
		slots = append(slots, r)
	}
	return slots, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
