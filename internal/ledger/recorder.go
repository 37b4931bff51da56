package ledger

import (
	"log/slog"
	"time"

	"github.com/starford/halosync/internal/syncer"
)

// Recorder writes syncer batches into the ledger. Write failures are logged
// and never fail the batch.
type Recorder struct {
	db     *DB
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger falls back to slog.Default().
func NewRecorder(db *DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// Begin is a syncer.Options.OnBegin hook.
func (r *Recorder) Begin(report *syncer.Report) {
	if err := r.db.BeginRun(report.RunID, report.Root, report.StartedAt); err != nil {
		r.logger.Error("ledger: begin run", slog.String("run_id", report.RunID), slog.String("error", err.Error()))
	}
}

// Result is a syncer.Options.OnResult hook. Results outside a batch are
// ignored.
func (r *Recorder) Result(res syncer.Result) {
	if res.RunID == "" {
		return
	}
	if err := r.db.RecordDocument(DocumentFromResult(res, time.Now())); err != nil {
		r.logger.Error("ledger: record document", slog.String("path", res.Path), slog.String("error", err.Error()))
	}
}

// Finish stores the totals of a completed (or interrupted) batch.
func (r *Recorder) Finish(report *syncer.Report) {
	if report == nil {
		return
	}
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	c := report.Counts()
	err := r.db.FinishRun(report.RunID, finished, Counts{
		Created: c.Created,
		Updated: c.Updated,
		Skipped: c.Skipped,
		Failed:  c.Failed,
	})
	if err != nil {
		r.logger.Error("ledger: finish run", slog.String("run_id", report.RunID), slog.String("error", err.Error()))
	}
}

// DocumentFromResult converts a syncer result into a ledger row.
func DocumentFromResult(res syncer.Result, processed time.Time) Document {
	d := Document{
		RunID:       res.RunID,
		Index:       res.Index,
		Path:        res.Path,
		Checksum:    res.Checksum,
		Slug:        res.Slug,
		Status:      string(res.Status),
		Reason:      res.Reason,
		Published:   res.Published,
		ProcessedAt: processed,
	}
	if res.Err != nil {
		d.Error = res.Err.Error()
	}
	return d
}
