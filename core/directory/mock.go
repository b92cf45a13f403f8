package directory

import (
	"context"

	"github.com/nroult/fieldops/core/model"
)

// StaticDirectory serves a fixed technician pool. Used in tests and by the
// one-shot dispatch command.
type StaticDirectory struct {
	Technicians []model.Technician
}

// ActiveTechnicians returns the approved, active, geolocated subset of the
// configured pool. The category is not used for segmentation here; skill fit
// is a scoring concern, not an eligibility one.
func (d StaticDirectory) ActiveTechnicians(_ context.Context, _ string) ([]model.Technician, error) {
	var out []model.Technician
	for _, t := range d.Technicians {
		if t.Approved && t.Active && t.Geolocated() {
			out = append(out, t)
		}
	}
	return out, nil
}

// StaticWorkload returns configured per-technician job counts, defaulting to
// zero.
type StaticWorkload struct {
	Counts map[string]int
}

// ActiveJobCount returns the configured count for the technician or 0.
func (w StaticWorkload) ActiveJobCount(_ context.Context, technicianID string) (int, error) {
	if w.Counts == nil {
		return 0, nil
	}
	return w.Counts[technicianID], nil
}

// StaticRatings returns configured average ratings. Technicians absent from
// the map report ok=false and fall back to the cold-start default.
type StaticRatings struct {
	Ratings map[string]float64
}

// AverageRating returns the configured rating for the technician.
func (r StaticRatings) AverageRating(_ context.Context, technicianID string) (float64, bool, error) {
	if r.Ratings == nil {
		return 0, false, nil
	}
	avg, ok := r.Ratings[technicianID]
	return avg, ok, nil
}
