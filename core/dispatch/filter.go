package dispatch

import (
	"context"
	"fmt"

	"github.com/nroult/fieldops/core/directory"
	"github.com/nroult/fieldops/core/logger"
	"github.com/nroult/fieldops/core/model"
)

// Filter reason codes. An empty code means candidates were found.
const (
	ReasonNoTechnicians = "NO_TECHNICIANS"
	ReasonAllExcluded   = "ALL_EXCLUDED"
	ReasonNoneAvailable = "NONE_AVAILABLE"
	ReasonAllAtCapacity = "ALL_AT_CAPACITY"
)

// FilterStage records how many candidates survived each filtering rule, for
// observability of why a round came up short.
type FilterStage struct {
	Name string
	Kept int
}

// FilterResult is the outcome of candidate selection. An empty candidate
// list is a value, never an error: the reason code tells which stage
// emptied the pool.
type FilterResult struct {
	Candidates []model.CandidateView
	ReasonCode string
	Stages     []FilterStage
}

// Empty reports whether no candidate survived.
func (r FilterResult) Empty() bool { return len(r.Candidates) == 0 }

// CandidateFilter selects technicians eligible for an intervention and joins
// in their current workload and rating.
type CandidateFilter struct {
	directory directory.TechnicianDirectory
	workload  directory.WorkloadSource
	ratings   directory.RatingSource
	maxJobs   int
	log       logger.Logger
}

// NewCandidateFilter wires a filter over the external sources. maxJobs is
// the default concurrent-job capacity applied to technicians without an own
// limit.
func NewCandidateFilter(dir directory.TechnicianDirectory, wl directory.WorkloadSource, rt directory.RatingSource, maxJobs int, log logger.Logger) (*CandidateFilter, error) {
	if dir == nil || wl == nil || rt == nil {
		return nil, fmt.Errorf("dispatch: nil source provided to NewCandidateFilter")
	}
	if maxJobs <= 0 {
		maxJobs = 3
	}
	return &CandidateFilter{directory: dir, workload: wl, ratings: rt, maxJobs: maxJobs, log: log}, nil
}

// Filter returns the candidates eligible for the intervention, excluding the
// technicians in excluded (the cumulative decline/cancel ledger for this
// intervention).
func (f *CandidateFilter) Filter(ctx context.Context, iv model.Intervention, excluded map[string]bool) (FilterResult, error) {
	techs, err := f.directory.ActiveTechnicians(ctx, iv.Category)
	if err != nil {
		return FilterResult{}, fmt.Errorf("dispatch: technician directory: %w", err)
	}

	res := FilterResult{}
	res.Stages = append(res.Stages, FilterStage{Name: "directory_pool", Kept: len(techs)})
	if len(techs) == 0 {
		res.ReasonCode = ReasonNoTechnicians
		return res, nil
	}

	afterExcluded := techs[:0:0]
	for _, t := range techs {
		if !excluded[t.ID] {
			afterExcluded = append(afterExcluded, t)
		}
	}
	res.Stages = append(res.Stages, FilterStage{Name: "exclusion_ledger", Kept: len(afterExcluded)})
	if len(afterExcluded) == 0 {
		res.ReasonCode = ReasonAllExcluded
		return res, nil
	}

	afterAvailable := afterExcluded[:0:0]
	for _, t := range afterExcluded {
		if t.Available {
			afterAvailable = append(afterAvailable, t)
		}
	}
	res.Stages = append(res.Stages, FilterStage{Name: "availability", Kept: len(afterAvailable)})
	if len(afterAvailable) == 0 {
		res.ReasonCode = ReasonNoneAvailable
		return res, nil
	}

	var views []model.CandidateView
	for _, t := range afterAvailable {
		jobs, err := f.workload.ActiveJobCount(ctx, t.ID)
		if err != nil {
			return FilterResult{}, fmt.Errorf("dispatch: workload source: %w", err)
		}
		limit := t.MaxActiveJobs
		if limit <= 0 {
			limit = f.maxJobs
		}
		if jobs >= limit {
			continue
		}
		avg, ok, err := f.ratings.AverageRating(ctx, t.ID)
		if err != nil {
			return FilterResult{}, fmt.Errorf("dispatch: rating source: %w", err)
		}
		if !ok {
			avg = ColdStartRating
		}
		views = append(views, model.CandidateView{
			TechnicianID:  t.ID,
			Latitude:      t.Latitude,
			Longitude:     t.Longitude,
			Skills:        t.Skills,
			ActiveJobs:    jobs,
			AverageRating: avg,
		})
	}
	res.Stages = append(res.Stages, FilterStage{Name: "capacity", Kept: len(views)})
	if len(views) == 0 {
		res.ReasonCode = ReasonAllAtCapacity
		return res, nil
	}

	res.Candidates = views
	return res, nil
}
