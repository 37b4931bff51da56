package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/starford/halosync/internal/apperr"
)

// Run is one row of the runs table.
type Run struct {
	ID         string     `json:"id"`
	Root       string     `json:"root"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// Document is one row of the documents table.
type Document struct {
	RunID       string    `json:"run_id"`
	Index       int       `json:"index"`
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	Slug        string    `json:"slug"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	Published   bool      `json:"published"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Counts are the per-status totals stored when a run finishes.
type Counts struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// BeginRun records the start of a run.
func (db *DB) BeginRun(id, root string, started time.Time) error {
	_, err := sq.Insert("runs").
		Columns("id", "root", "started_at").
		Values(id, root, started.UTC()).
		RunWith(db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("ledger: begin run: %w", err)
	}
	return nil
}

// RecordDocument stores the outcome of one document of run d.RunID.
func (db *DB) RecordDocument(d Document) error {
	if d.ProcessedAt.IsZero() {
		d.ProcessedAt = time.Now()
	}
	_, err := sq.Insert("documents").
		Columns("run_id", "idx", "path", "checksum", "slug", "status", "reason", "error", "published", "processed_at").
		Values(d.RunID, d.Index, d.Path, d.Checksum, d.Slug, d.Status, d.Reason, d.Error, d.Published, d.ProcessedAt.UTC()).
		RunWith(db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("ledger: record document %s: %w", d.Path, err)
	}
	return nil
}

// FinishRun stamps the end of a run with its totals.
func (db *DB) FinishRun(id string, finished time.Time, c Counts) error {
	res, err := sq.Update("runs").
		SetMap(map[string]any{
			"finished_at": finished.UTC(),
			"created":     c.Created,
			"updated":     c.Updated,
			"skipped":     c.Skipped,
			"failed":      c.Failed,
		}).
		Where(sq.Eq{"id": id}).
		RunWith(db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: finish run %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := sq.Select("id", "root", "started_at", "finished_at", "created", "updated", "skipped", "failed").
		From("runs").
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit)).
		RunWith(db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("ledger: recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Root, &r.StartedAt, &finished, &r.Created, &r.Updated, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one run by ID.
func (db *DB) GetRun(id string) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := sq.Select("id", "root", "started_at", "finished_at", "created", "updated", "skipped", "failed").
		From("runs").
		Where(sq.Eq{"id": id}).
		RunWith(db.conn).
		QueryRow().
		Scan(&r.ID, &r.Root, &r.StartedAt, &finished, &r.Created, &r.Updated, &r.Skipped, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: run %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get run: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// RunDocuments returns the documents of a run in batch order.
func (db *DB) RunDocuments(runID string) ([]Document, error) {
	rows, err := sq.Select("run_id", "idx", "path", "checksum", "slug", "status", "reason", "error", "published", "processed_at").
		From("documents").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("idx").
		RunWith(db.conn).
		Query()
	if err != nil {
		return nil, fmt.Errorf("ledger: run documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.RunID, &d.Index, &d.Path, &d.Checksum, &d.Slug, &d.Status, &d.Reason, &d.Error, &d.Published, &d.ProcessedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
