package model

import (
	"fmt"
	"time"
)

// InterventionStatus tracks an intervention through its lifecycle.
type InterventionStatus int

const (
	StatusNew InterventionStatus = iota
	StatusAssigned
	StatusOnRoute
	StatusArrived
	StatusInProgress
	StatusToReassign
	StatusCompleted
	StatusCancelled
)

// String returns a human-readable representation of the status.
func (s InterventionStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusAssigned:
		return "assigned"
	case StatusOnRoute:
		return "on_route"
	case StatusArrived:
		return "arrived"
	case StatusInProgress:
		return "in_progress"
	case StatusToReassign:
		return "to_reassign"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RequiresTechnician reports whether an intervention in this status must
// carry a non-empty technician id. Exactly one technician holds the job
// while the status is in this set.
func (s InterventionStatus) RequiresTechnician() bool {
	switch s {
	case StatusAssigned, StatusOnRoute, StatusArrived, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Intervention represents a field-service job request. It is created by the
// booking flow with StatusNew and a known geolocation.
type Intervention struct {
	ID       string
	Category string // required skill category, e.g. "plumbing"
	Priority int

	Latitude  float64
	Longitude float64

	Status       InterventionStatus
	TechnicianID string // empty while unassigned

	// RequiresManualAssignment is raised when a round exhausts all
	// candidates without a winner.
	RequiresManualAssignment bool

	CreatedAt           time.Time
	AcceptedAt          time.Time // zero until a technician accepts
	ResponseTimeSeconds int64
}

// Assigned reports whether a technician currently holds the job.
func (i Intervention) Assigned() bool {
	return i.TechnicianID != "" && i.Status.RequiresTechnician()
}

// Validate checks that the intervention is well formed.
func (i Intervention) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("intervention id is required")
	}
	if i.Latitude < -90 || i.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", i.Latitude)
	}
	if i.Longitude < -180 || i.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", i.Longitude)
	}
	if i.Status.RequiresTechnician() && i.TechnicianID == "" {
		return fmt.Errorf("status %s requires a technician", i.Status)
	}
	if !i.Status.RequiresTechnician() && i.TechnicianID != "" {
		return fmt.Errorf("status %s forbids a technician", i.Status)
	}
	return nil
}
