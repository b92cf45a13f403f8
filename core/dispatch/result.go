package dispatch

import (
	"time"

	"github.com/nroult/fieldops/core/model"
)

// OfferSummary describes one offer created during a round, returned to the
// caller for observability.
type OfferSummary struct {
	TechnicianID string               `json:"technician_id"`
	Order        int                  `json:"order"`
	Score        float64              `json:"score"`
	Breakdown    model.ScoreBreakdown `json:"breakdown"`
	DistanceKm   float64              `json:"distance_km"`
	ETA          time.Duration        `json:"eta"`
	Delivered    bool                 `json:"delivered"`
}

// RoundResult is the outcome of a dispatch round. Success false with a
// message is an expected business outcome (no candidates, already handled),
// never an infrastructure failure.
type RoundResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	InterventionID string `json:"intervention_id"`
	RoundID        string `json:"round_id,omitempty"`

	// AssignedTechnician is set on the idempotent path when the
	// intervention already has a holder.
	AssignedTechnician       string         `json:"assigned_technician,omitempty"`
	RequiresManualAssignment bool           `json:"requires_manual_assignment,omitempty"`
	Offers                   []OfferSummary `json:"offers,omitempty"`
}

// ActionResult is the uniform reply of every lifecycle action. Guard
// failures (too late, wrong technician, nothing pending) surface here as
// Success=false; only infrastructure failures are returned as errors.
type ActionResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	InterventionID string `json:"intervention_id"`
	TechnicianID   string `json:"technician_id,omitempty"`
	Status         string `json:"status,omitempty"`

	ResponseTimeSeconds      int64 `json:"response_time_seconds,omitempty"`
	ExpiredAttempts          int   `json:"expired_attempts,omitempty"`
	RequiresManualAssignment bool  `json:"requires_manual_assignment,omitempty"`

	// Round is set when the action triggered a fresh dispatch round
	// (cancellation recovery).
	Round *RoundResult `json:"round,omitempty"`
}
