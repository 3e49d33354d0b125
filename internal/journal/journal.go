// Package journal keeps a local SQLite ledger of sync runs and their
// per-document outcomes.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/report"

	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned when the journal holds no run yet.
var ErrNoRuns = errors.New("journal has no runs")

// Run is one recorded sync run.
type Run struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	StoreName        string
	StoreDisplayName string
	DryRun           bool
	Existing         int
	Candidates       int
	Skipped          int
	Duplicates       int
	Submitted        int
	Succeeded        int
	Failed           int
}

// Document is one recorded per-document outcome.
type Document struct {
	RunID         string
	DisplayName   string
	Path          string
	OperationName string
	Status        domain.OutcomeStatus
	Kind          domain.FailureKind
	Reason        string
}

// Journal is an open ledger.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			store_name TEXT NOT NULL,
			store_display_name TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			existing INTEGER NOT NULL,
			candidates INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			submitted INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS documents (
			run_id TEXT NOT NULL REFERENCES runs(id),
			display_name TEXT NOT NULL,
			path TEXT NOT NULL,
			operation_name TEXT NOT NULL,
			status TEXT NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a finished run and its outcomes in one transaction and
// returns the new run id.
func (j *Journal) Record(ctx context.Context, started, finished time.Time, r report.Report) (string, error) {
	id := uuid.NewString()
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, store_name, store_display_name, dry_run,
			existing, candidates, skipped, duplicates, submitted, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, started.UnixMilli(), finished.UnixMilli(), r.StoreName, r.StoreDisplayName, r.DryRun,
		r.Existing, r.Candidates, r.Skipped, r.Duplicates, r.Submitted, r.Succeeded, r.Failed)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (run_id, display_name, path, operation_name, status, kind, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, o := range r.Outcomes {
		if _, err := stmt.ExecContext(ctx, id, o.DisplayName, o.Path, o.OperationName,
			string(o.Status), string(o.Kind), o.Reason); err != nil {
			return "", fmt.Errorf("insert outcome %s: %w", o.DisplayName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, store_name, store_display_name, dry_run,
			existing, candidates, skipped, duplicates, submitted, succeeded, failed
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.StoreName, &r.StoreDisplayName, &r.DryRun,
			&r.Existing, &r.Candidates, &r.Skipped, &r.Duplicates, &r.Submitted, &r.Succeeded, &r.Failed); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the most recent run.
func (j *Journal) Latest(ctx context.Context) (Run, error) {
	runs, err := j.Recent(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// Failed returns the failed documents of a run.
func (j *Journal) Failed(ctx context.Context, runID string) ([]Document, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, display_name, path, operation_name, status, kind, reason
		FROM documents WHERE run_id = ? AND status = ? ORDER BY rowid
	`, runID, string(domain.StatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var status, kind string
		if err := rows.Scan(&d.RunID, &d.DisplayName, &d.Path, &d.OperationName, &status, &kind, &d.Reason); err != nil {
			return nil, err
		}
		d.Status = domain.OutcomeStatus(status)
		d.Kind = domain.FailureKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}
