// Package events defines the payload types published on the internal event
// bus during dispatch rounds and lifecycle actions.
package events

import "time"

// RoundEvent is published when a dispatch round is created.
type RoundEvent struct {
	InterventionID string
	RoundID        string
	Candidates     int
	Notified       []string
}

// OfferEvent is published per offer delivery attempt.
type OfferEvent struct {
	InterventionID string
	RoundID        string
	TechnicianID   string
	Order          int
	Score          float64
	Delivered      bool
	Err            error
}

// ClaimEvent is published for each accept or go call that reached the store.
type ClaimEvent struct {
	InterventionID string
	TechnicianID   string
	Won            bool
	ResponseTime   time.Duration
}

// TimeoutEvent is published when a timeout sweep expires attempts.
type TimeoutEvent struct {
	InterventionID string
	Expired        int
}

// ExclusionEvent is published when a technician is permanently excluded
// from an intervention.
type ExclusionEvent struct {
	InterventionID string
	TechnicianID   string
	Reason         string
}
