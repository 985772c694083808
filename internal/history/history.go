// Package history persists comparison outcomes to SQLite so test runs
// can be audited after the fact.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/snapdiff/snapdiff/internal/errors"
)

// Record is one persisted comparison outcome.
type Record struct {
	ID             string    `json:"id"`
	Baseline       string    `json:"baseline"`
	Candidate      string    `json:"candidate"`
	Similar        bool      `json:"similar"`
	HashSimilarity float64   `json:"hash_similarity"`
	SSIM           float64   `json:"ssim"`
	PixelDiffRatio float64   `json:"pixel_difference_ratio"`
	Threshold      float64   `json:"threshold"`
	Degraded       bool      `json:"degraded,omitempty"`
	ErrCode        string    `json:"error_code,omitempty"`
	ErrReason      string    `json:"error,omitempty"`
	DiffPath       string    `json:"diff_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary aggregates the ledger.
type Summary struct {
	Total   int `json:"total"`
	Similar int `json:"similar"`
	Failed  int `json:"failed"` // comparisons that could not be computed
}

// Ledger is a SQLite-backed comparison log.
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS comparisons (
	id TEXT PRIMARY KEY,
	baseline TEXT NOT NULL,
	candidate TEXT NOT NULL,
	similar INTEGER NOT NULL,
	hash_similarity REAL,
	ssim REAL,
	pixel_diff_ratio REAL,
	threshold REAL,
	degraded INTEGER NOT NULL DEFAULT 0,
	err_code TEXT,
	err_reason TEXT,
	diff_path TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_created_at ON comparisons(created_at);
CREATE INDEX IF NOT EXISTS idx_similar ON comparisons(similar);`

// Open opens (creating if needed) the ledger database.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeHistoryFailed, "open history db")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeHistoryFailed, "init history schema")
	}
	return &Ledger{db: db}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// Record inserts a comparison outcome. An empty ID and zero CreatedAt
// are filled in.
func (l *Ledger) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO comparisons
			(id, baseline, candidate, similar, hash_similarity, ssim,
			 pixel_diff_ratio, threshold, degraded, err_code, err_reason,
			 diff_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Baseline, rec.Candidate, rec.Similar,
		rec.HashSimilarity, rec.SSIM, rec.PixelDiffRatio, rec.Threshold,
		rec.Degraded, rec.ErrCode, rec.ErrReason, rec.DiffPath,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeHistoryFailed, "insert comparison")
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, baseline, candidate, similar, hash_similarity, ssim,
		       pixel_diff_ratio, threshold, degraded, err_code, err_reason,
		       diff_path, created_at
		FROM comparisons ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeHistoryFailed, "query comparisons")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var created string
		if err := rows.Scan(&rec.ID, &rec.Baseline, &rec.Candidate, &rec.Similar,
			&rec.HashSimilarity, &rec.SSIM, &rec.PixelDiffRatio, &rec.Threshold,
			&rec.Degraded, &rec.ErrCode, &rec.ErrReason, &rec.DiffPath, &created); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeHistoryFailed, "scan comparison")
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summarize aggregates verdict counts across the whole ledger.
func (l *Ledger) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(similar), 0),
		       COALESCE(SUM(CASE WHEN err_code != '' AND err_code != 'degraded_computation' THEN 1 ELSE 0 END), 0)
		FROM comparisons`).Scan(&s.Total, &s.Similar, &s.Failed)
	if err != nil {
		return s, apperrors.Wrap(err, apperrors.CodeHistoryFailed, "summarize comparisons")
	}
	return s, nil
}
