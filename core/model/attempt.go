package model

import "time"

// AttemptStatus tracks the outcome of a single offer to a technician.
type AttemptStatus int

const (
	AttemptPending AttemptStatus = iota
	AttemptAccepted
	AttemptRejected
	AttemptCancelled
	AttemptTimeout
)

// String returns a human-readable representation of the attempt status.
func (s AttemptStatus) String() string {
	switch s {
	case AttemptPending:
		return "pending"
	case AttemptAccepted:
		return "accepted"
	case AttemptRejected:
		return "rejected"
	case AttemptCancelled:
		return "cancelled"
	case AttemptTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Terminal reports whether the attempt can no longer change state.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptPending
}

// ScoreBreakdown holds the four sub-scores, each in [0,100], that compose the
// ranking score of a candidate.
type ScoreBreakdown struct {
	Proximity float64 `json:"proximity"`
	Skills    float64 `json:"skills"`
	Workload  float64 `json:"workload"`
	Rating    float64 `json:"rating"`
}

// DispatchAttempt is the persisted record of one offer to one technician
// within a dispatch round. Within a round at most one attempt ever reaches
// AttemptAccepted.
type DispatchAttempt struct {
	ID             string
	RoundID        string
	InterventionID string
	TechnicianID   string

	Score      float64
	Breakdown  ScoreBreakdown
	DistanceKm float64
	TravelTime time.Duration

	Status AttemptStatus
	Order  int // 1-based rank within the round

	NotifiedAt  time.Time // zero until the offer has been sent
	TimeoutAt   time.Time
	RespondedAt time.Time
}

// Notified reports whether the offer has been sent to the technician.
func (a DispatchAttempt) Notified() bool {
	return !a.NotifiedAt.IsZero()
}

// Expired reports whether a pending attempt has outlived its response window.
func (a DispatchAttempt) Expired(now time.Time) bool {
	return a.Status == AttemptPending && a.Notified() && !a.TimeoutAt.IsZero() && now.After(a.TimeoutAt)
}

// ExclusionRecord is an append-only entry in the exclusion ledger: the
// technician must never again be offered this intervention. Records are
// written on decline and on post-assignment cancellation, and are never
// deleted.
type ExclusionRecord struct {
	InterventionID string
	TechnicianID   string
	Reason         string
	RecordedAt     time.Time
}
