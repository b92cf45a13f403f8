package store

import (
	"context"
	"errors"
	"time"

	"github.com/nroult/fieldops/core/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ClaimOutcome reports the result of an atomic acceptance attempt.
type ClaimOutcome struct {
	// Won is true when the caller's pending attempt was flipped to
	// accepted. False means the offer is gone: already claimed by a
	// sibling, expired, cancelled or never made.
	Won bool
	// AlreadyOwn is true when the caller had already won a previous
	// claim for this intervention; the call is an idempotent replay.
	AlreadyOwn bool
	// Intervention is the post-claim state of the intervention. Only
	// meaningful when Won or AlreadyOwn is true.
	Intervention model.Intervention
	// CancelledSiblings lists technicians whose pending offers were
	// revoked by a winning claim, so they can be notified.
	CancelledSiblings []string
}

// InterventionStore persists interventions.
type InterventionStore interface {
	GetIntervention(ctx context.Context, id string) (model.Intervention, error)
	SaveIntervention(ctx context.Context, iv model.Intervention) error
	// CountActiveJobs returns the number of interventions currently
	// held by the technician (assigned through in_progress).
	CountActiveJobs(ctx context.Context, technicianID string) (int, error)
	// PendingInterventions lists ids of interventions that still have
	// at least one pending attempt. Used by the timeout sweeper.
	PendingInterventions(ctx context.Context) ([]string, error)
}

// AttemptStore persists dispatch attempts.
type AttemptStore interface {
	CreateAttempts(ctx context.Context, attempts []model.DispatchAttempt) error
	// Attempts returns the full offer history for the intervention,
	// ordered by round creation then attempt order.
	Attempts(ctx context.Context, interventionID string) ([]model.DispatchAttempt, error)
	UpdateAttempt(ctx context.Context, attempt model.DispatchAttempt) error
	// CancelPending marks every pending attempt of the intervention
	// cancelled and returns how many rows changed.
	CancelPending(ctx context.Context, interventionID string, now time.Time) (int, error)
	// CancelActive cancels pending and accepted attempts, used when an
	// assigned technician abandons the job.
	CancelActive(ctx context.Context, interventionID string, now time.Time) (int, error)
	// MarkAttempt transitions the technician's attempt from one status
	// to another only if it still holds the expected status. It
	// reports whether a row actually changed; false is a clean "too
	// late", never an error.
	MarkAttempt(ctx context.Context, interventionID, technicianID string, from, to model.AttemptStatus, now time.Time) (bool, error)
	// ClaimAttempt is the single atomic acceptance primitive: flip the
	// technician's pending attempt to accepted, cancel sibling pending
	// attempts and hand the intervention to the technician, all in one
	// unit. A lost race yields Won=false, not an error.
	ClaimAttempt(ctx context.Context, interventionID, technicianID string, now time.Time) (ClaimOutcome, error)
}

// ExclusionStore persists the append-only exclusion ledger.
type ExclusionStore interface {
	AddExclusion(ctx context.Context, rec model.ExclusionRecord) error
	Exclusions(ctx context.Context, interventionID string) ([]model.ExclusionRecord, error)
}

// Store aggregates all persistence needed by the dispatch engine.
type Store interface {
	InterventionStore
	AttemptStore
	ExclusionStore
}
