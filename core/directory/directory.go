// Package directory defines the external collaborator interfaces the
// dispatch engine reads candidates from: the technician directory, the
// workload source and the rating source. Implementations live under infra.
package directory

import (
	"context"

	"github.com/nroult/fieldops/core/model"
)

// TechnicianDirectory exposes the pool of approved, active, geolocated
// technicians for a skill category.
type TechnicianDirectory interface {
	ActiveTechnicians(ctx context.Context, category string) ([]model.Technician, error)
}

// WorkloadSource reports how many jobs a technician currently holds.
type WorkloadSource interface {
	ActiveJobCount(ctx context.Context, technicianID string) (int, error)
}

// RatingSource reports a technician's average rating. ok is false when the
// technician has no completed jobs yet, in which case the scorer applies the
// cold-start default.
type RatingSource interface {
	AverageRating(ctx context.Context, technicianID string) (avg float64, ok bool, err error)
}
