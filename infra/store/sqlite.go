// Package store provides the SQLite-backed implementation of the core
// store interfaces. The acceptance claim is a single transaction of
// predicate-guarded updates: "set accepted only where still pending",
// checked through the affected row count.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nroult/fieldops/core/model"
	corestore "github.com/nroult/fieldops/core/store"
)

// SQLiteStore persists interventions, attempts and the exclusion ledger in
// a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS interventions (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 0,
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    status INTEGER NOT NULL DEFAULT 0,
    technician_id TEXT NOT NULL DEFAULT '',
    requires_manual INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT 0,
    accepted_at INTEGER NOT NULL DEFAULT 0,
    response_time_s INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS dispatch_attempts (
    id TEXT PRIMARY KEY,
    round_id TEXT NOT NULL,
    intervention_id TEXT NOT NULL,
    technician_id TEXT NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    proximity REAL NOT NULL DEFAULT 0,
    skills REAL NOT NULL DEFAULT 0,
    workload REAL NOT NULL DEFAULT 0,
    rating REAL NOT NULL DEFAULT 0,
    distance_km REAL NOT NULL DEFAULT 0,
    travel_time_ns INTEGER NOT NULL DEFAULT 0,
    status INTEGER NOT NULL DEFAULT 0,
    attempt_order INTEGER NOT NULL DEFAULT 0,
    notified_at INTEGER NOT NULL DEFAULT 0,
    timeout_at INTEGER NOT NULL DEFAULT 0,
    responded_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_attempts_intervention
    ON dispatch_attempts(intervention_id);
CREATE TABLE IF NOT EXISTS exclusions (
    intervention_id TEXT NOT NULL,
    technician_id TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_exclusions_intervention
    ON exclusions(intervention_id);
`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single writer keeps the claim transaction serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func ts(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromTS(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// GetIntervention returns the intervention or core store ErrNotFound.
func (s *SQLiteStore) GetIntervention(ctx context.Context, id string) (model.Intervention, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, category, priority, latitude, longitude, status, technician_id,
       requires_manual, created_at, accepted_at, response_time_s
FROM interventions WHERE id = ?`, id)
	return scanIntervention(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntervention(row rowScanner) (model.Intervention, error) {
	var (
		iv                    model.Intervention
		status, manual        int
		createdAt, acceptedAt int64
	)
	err := row.Scan(&iv.ID, &iv.Category, &iv.Priority, &iv.Latitude, &iv.Longitude,
		&status, &iv.TechnicianID, &manual, &createdAt, &acceptedAt, &iv.ResponseTimeSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Intervention{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Intervention{}, err
	}
	iv.Status = model.InterventionStatus(status)
	iv.RequiresManualAssignment = manual != 0
	iv.CreatedAt = fromTS(createdAt)
	iv.AcceptedAt = fromTS(acceptedAt)
	return iv, nil
}

// SaveIntervention inserts or replaces the intervention.
func (s *SQLiteStore) SaveIntervention(ctx context.Context, iv model.Intervention) error {
	manual := 0
	if iv.RequiresManualAssignment {
		manual = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO interventions
    (id, category, priority, latitude, longitude, status, technician_id,
     requires_manual, created_at, accepted_at, response_time_s)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    category = excluded.category,
    priority = excluded.priority,
    latitude = excluded.latitude,
    longitude = excluded.longitude,
    status = excluded.status,
    technician_id = excluded.technician_id,
    requires_manual = excluded.requires_manual,
    created_at = excluded.created_at,
    accepted_at = excluded.accepted_at,
    response_time_s = excluded.response_time_s`,
		iv.ID, iv.Category, iv.Priority, iv.Latitude, iv.Longitude, int(iv.Status),
		iv.TechnicianID, manual, ts(iv.CreatedAt), ts(iv.AcceptedAt), iv.ResponseTimeSeconds)
	return err
}

// CountActiveJobs counts interventions currently held by the technician.
func (s *SQLiteStore) CountActiveJobs(ctx context.Context, technicianID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM interventions
WHERE technician_id = ? AND status IN (?, ?, ?, ?)`,
		technicianID,
		int(model.StatusAssigned), int(model.StatusOnRoute),
		int(model.StatusArrived), int(model.StatusInProgress)).Scan(&n)
	return n, err
}

// PendingInterventions lists intervention ids with at least one pending
// attempt.
func (s *SQLiteStore) PendingInterventions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT intervention_id FROM dispatch_attempts WHERE status = ?`,
		int(model.AttemptPending))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateAttempts inserts the round's attempts.
func (s *SQLiteStore) CreateAttempts(ctx context.Context, attempts []model.DispatchAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dispatch_attempts
    (id, round_id, intervention_id, technician_id, score, proximity, skills,
     workload, rating, distance_km, travel_time_ns, status, attempt_order,
     notified_at, timeout_at, responded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.RoundID, a.InterventionID, a.TechnicianID, a.Score,
			a.Breakdown.Proximity, a.Breakdown.Skills, a.Breakdown.Workload, a.Breakdown.Rating,
			a.DistanceKm, int64(a.TravelTime), int(a.Status), a.Order,
			ts(a.NotifiedAt), ts(a.TimeoutAt), ts(a.RespondedAt)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const attemptColumns = `
id, round_id, intervention_id, technician_id, score, proximity, skills,
workload, rating, distance_km, travel_time_ns, status, attempt_order,
notified_at, timeout_at, responded_at`

func scanAttempt(rows *sql.Rows) (model.DispatchAttempt, error) {
	var (
		a                                  model.DispatchAttempt
		travelNS                           int64
		status                             int
		notifiedAt, timeoutAt, respondedAt int64
	)
	err := rows.Scan(&a.ID, &a.RoundID, &a.InterventionID, &a.TechnicianID, &a.Score,
		&a.Breakdown.Proximity, &a.Breakdown.Skills, &a.Breakdown.Workload, &a.Breakdown.Rating,
		&a.DistanceKm, &travelNS, &status, &a.Order, &notifiedAt, &timeoutAt, &respondedAt)
	if err != nil {
		return model.DispatchAttempt{}, err
	}
	a.TravelTime = time.Duration(travelNS)
	a.Status = model.AttemptStatus(status)
	a.NotifiedAt = fromTS(notifiedAt)
	a.TimeoutAt = fromTS(timeoutAt)
	a.RespondedAt = fromTS(respondedAt)
	return a, nil
}

// Attempts returns the offer history ordered by insertion then rank.
func (s *SQLiteStore) Attempts(ctx context.Context, interventionID string) ([]model.DispatchAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+attemptColumns+`
FROM dispatch_attempts WHERE intervention_id = ?
ORDER BY rowid ASC`, interventionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.DispatchAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAttempt replaces the attempt identified by its id.
func (s *SQLiteStore) UpdateAttempt(ctx context.Context, a model.DispatchAttempt) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE dispatch_attempts SET
    status = ?, attempt_order = ?, notified_at = ?, timeout_at = ?, responded_at = ?
WHERE id = ?`,
		int(a.Status), a.Order, ts(a.NotifiedAt), ts(a.TimeoutAt), ts(a.RespondedAt), a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return corestore.ErrNotFound
	}
	return nil
}

// CancelPending marks all pending attempts cancelled.
func (s *SQLiteStore) CancelPending(ctx context.Context, interventionID string, now time.Time) (int, error) {
	return s.cancelWhere(ctx, interventionID, now, []model.AttemptStatus{model.AttemptPending})
}

// CancelActive marks pending and accepted attempts cancelled.
func (s *SQLiteStore) CancelActive(ctx context.Context, interventionID string, now time.Time) (int, error) {
	return s.cancelWhere(ctx, interventionID, now,
		[]model.AttemptStatus{model.AttemptPending, model.AttemptAccepted})
}

func (s *SQLiteStore) cancelWhere(ctx context.Context, interventionID string, now time.Time, from []model.AttemptStatus) (int, error) {
	query := `UPDATE dispatch_attempts SET status = ?, responded_at = ? WHERE intervention_id = ? AND status IN (`
	args := []any{int(model.AttemptCancelled), ts(now), interventionID}
	for i, st := range from {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, int(st))
	}
	query += ")"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MarkAttempt transitions the technician's attempt only if it still holds
// the expected status. The affected row count is the guard check.
func (s *SQLiteStore) MarkAttempt(ctx context.Context, interventionID, technicianID string, from, to model.AttemptStatus, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE dispatch_attempts SET status = ?, responded_at = ?
WHERE intervention_id = ? AND technician_id = ? AND status = ?`,
		int(to), ts(now), interventionID, technicianID, int(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimAttempt flips the technician's pending attempt to accepted, cancels
// sibling pending attempts and hands over the intervention, all in one
// transaction. Zero rows affected on the first update means the offer is
// gone; the caller gets a clean Won=false.
func (s *SQLiteStore) ClaimAttempt(ctx context.Context, interventionID, technicianID string, now time.Time) (corestore.ClaimOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return corestore.ClaimOutcome{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE dispatch_attempts SET status = ?, responded_at = ?
WHERE intervention_id = ? AND technician_id = ? AND status = ?`,
		int(model.AttemptAccepted), ts(now), interventionID, technicianID, int(model.AttemptPending))
	if err != nil {
		return corestore.ClaimOutcome{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return corestore.ClaimOutcome{}, err
	}

	iv, err := scanIntervention(tx.QueryRowContext(ctx, `
SELECT id, category, priority, latitude, longitude, status, technician_id,
       requires_manual, created_at, accepted_at, response_time_s
FROM interventions WHERE id = ?`, interventionID))
	if err != nil {
		return corestore.ClaimOutcome{}, err
	}

	if n == 0 {
		// No pending offer for the caller: idempotent replay by the
		// holder, or simply too late.
		if iv.TechnicianID == technicianID && iv.Status.RequiresTechnician() {
			if err := tx.Commit(); err != nil {
				return corestore.ClaimOutcome{}, err
			}
			return corestore.ClaimOutcome{AlreadyOwn: true, Intervention: iv}, nil
		}
		return corestore.ClaimOutcome{}, tx.Commit()
	}

	siblingRows, err := tx.QueryContext(ctx, `
SELECT technician_id FROM dispatch_attempts
WHERE intervention_id = ? AND technician_id != ? AND status = ?`,
		interventionID, technicianID, int(model.AttemptPending))
	if err != nil {
		return corestore.ClaimOutcome{}, err
	}
	var siblings []string
	for siblingRows.Next() {
		var id string
		if err := siblingRows.Scan(&id); err != nil {
			_ = siblingRows.Close()
			return corestore.ClaimOutcome{}, err
		}
		siblings = append(siblings, id)
	}
	if err := siblingRows.Err(); err != nil {
		_ = siblingRows.Close()
		return corestore.ClaimOutcome{}, err
	}
	_ = siblingRows.Close()

	if _, err := tx.ExecContext(ctx, `
UPDATE dispatch_attempts SET status = ?, responded_at = ?
WHERE intervention_id = ? AND technician_id != ? AND status = ?`,
		int(model.AttemptCancelled), ts(now), interventionID, technicianID, int(model.AttemptPending)); err != nil {
		return corestore.ClaimOutcome{}, err
	}

	iv.TechnicianID = technicianID
	iv.Status = model.StatusOnRoute
	iv.AcceptedAt = now
	iv.ResponseTimeSeconds = int64(now.Sub(iv.CreatedAt).Seconds())
	iv.RequiresManualAssignment = false
	if _, err := tx.ExecContext(ctx, `
UPDATE interventions SET status = ?, technician_id = ?, requires_manual = 0,
    accepted_at = ?, response_time_s = ?
WHERE id = ?`,
		int(iv.Status), iv.TechnicianID, ts(iv.AcceptedAt), iv.ResponseTimeSeconds, iv.ID); err != nil {
		return corestore.ClaimOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return corestore.ClaimOutcome{}, err
	}
	return corestore.ClaimOutcome{Won: true, Intervention: iv, CancelledSiblings: siblings}, nil
}

// AddExclusion appends a record to the permanent ledger.
func (s *SQLiteStore) AddExclusion(ctx context.Context, rec model.ExclusionRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO exclusions (intervention_id, technician_id, reason, recorded_at)
VALUES (?, ?, ?, ?)`,
		rec.InterventionID, rec.TechnicianID, rec.Reason, ts(rec.RecordedAt))
	return err
}

// Exclusions returns the ledger entries for the intervention.
func (s *SQLiteStore) Exclusions(ctx context.Context, interventionID string) ([]model.ExclusionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT intervention_id, technician_id, reason, recorded_at
FROM exclusions WHERE intervention_id = ? ORDER BY rowid ASC`, interventionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ExclusionRecord
	for rows.Next() {
		var rec model.ExclusionRecord
		var at int64
		if err := rows.Scan(&rec.InterventionID, &rec.TechnicianID, &rec.Reason, &at); err != nil {
			return nil, err
		}
		rec.RecordedAt = fromTS(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
