// Package rating computes technician average ratings from completed-job
// marks persisted in SQLite.
package rating

import (
	"context"
	"database/sql"
	"time"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/nroult/fieldops/core/directory"
)

// SQLiteRatings stores per-job marks and serves cold-start-aware averages.
type SQLiteRatings struct {
	db *sql.DB
}

var _ directory.RatingSource = (*SQLiteRatings)(nil)

const ratingSchema = `
CREATE TABLE IF NOT EXISTS job_ratings (
    technician_id TEXT NOT NULL,
    intervention_id TEXT NOT NULL,
    mark REAL NOT NULL,
    rated_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_job_ratings_technician
    ON job_ratings(technician_id);
`

// NewSQLiteRatings opens or creates the ratings database at path.
func NewSQLiteRatings(path string) (*SQLiteRatings, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ratingSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRatings{db: db}, nil
}

// Close releases the database handle.
func (r *SQLiteRatings) Close() error { return r.db.Close() }

// AddMark records a customer mark for a completed job.
func (r *SQLiteRatings) AddMark(ctx context.Context, technicianID, interventionID string, mark float64) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO job_ratings (technician_id, intervention_id, mark, rated_at)
VALUES (?, ?, ?, ?)`, technicianID, interventionID, mark, time.Now().UnixNano())
	return err
}

// AverageRating returns the mean mark. ok is false when the technician has
// no rated jobs yet so the scorer falls back to the cold-start default.
func (r *SQLiteRatings) AverageRating(ctx context.Context, technicianID string) (float64, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT mark FROM job_ratings WHERE technician_id = ?`, technicianID)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = rows.Close() }()
	var marks []float64
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return 0, false, err
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if len(marks) == 0 {
		return 0, false, nil
	}
	return stat.Mean(marks, nil), true, nil
}
