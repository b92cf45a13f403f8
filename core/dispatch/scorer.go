package dispatch

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nroult/fieldops/core/model"
)

// ColdStartRating is the average rating assumed for technicians with no
// completed jobs.
const ColdStartRating = 3.0

// skillMismatchScore is the soft penalty applied when the candidate lacks
// the required skill. A close generalist can still outrank a distant
// specialist; hard eligibility is the directory's concern.
const skillMismatchScore = 30.0

// Scorer computes deterministic composite ranking scores. Identical inputs
// always produce identical scores and ordering.
type Scorer struct {
	ProximityWeight float64
	SkillsWeight    float64
	WorkloadWeight  float64
	RatingWeight    float64

	// Aliases maps an intervention category to additional skill names
	// treated as a direct match.
	Aliases map[string][]string
}

// NewScorer returns a scorer with the production weights.
func NewScorer(aliases map[string][]string) Scorer {
	return Scorer{
		ProximityWeight: 0.4,
		SkillsWeight:    0.3,
		WorkloadWeight:  0.2,
		RatingWeight:    0.1,
		Aliases:         aliases,
	}
}

// ScoredCandidate is a candidate annotated with its composite score,
// per-factor breakdown, distance and travel-time estimate.
type ScoredCandidate struct {
	model.CandidateView
	Score      float64
	Breakdown  model.ScoreBreakdown
	DistanceKm float64
	TravelTime time.Duration
}

// Score computes the composite score of a single candidate for the
// intervention. Pure: no clock, no randomness, no I/O.
func (s Scorer) Score(iv model.Intervention, c model.CandidateView) ScoredCandidate {
	dist := model.HaversineKm(iv.Latitude, iv.Longitude, c.Latitude, c.Longitude)

	proximity := math.Max(0, 100-2*dist)
	skills := skillMismatchScore
	if s.skillMatch(iv.Category, c) {
		skills = 100
	}
	workload := math.Max(0, 100-33.33*float64(c.ActiveJobs))
	rating := c.AverageRating / 5 * 100

	composite := s.ProximityWeight*proximity +
		s.SkillsWeight*skills +
		s.WorkloadWeight*workload +
		s.RatingWeight*rating

	return ScoredCandidate{
		CandidateView: c,
		Score:         round2(composite),
		Breakdown: model.ScoreBreakdown{
			Proximity: round2(proximity),
			Skills:    round2(skills),
			Workload:  round2(workload),
			Rating:    round2(rating),
		},
		DistanceKm: round2(dist),
		TravelTime: model.TravelTime(dist),
	}
}

// Rank scores every candidate and sorts descending by composite score with a
// fixed tiebreak on ascending technician id, so results are reproducible.
func (s Scorer) Rank(iv model.Intervention, candidates []model.CandidateView) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, s.Score(iv, c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].TechnicianID < out[j].TechnicianID
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// skillMatch reports whether the candidate covers the category directly or
// through the alias table.
func (s Scorer) skillMatch(category string, c model.CandidateView) bool {
	if c.HasSkill(category) {
		return true
	}
	for alias, skills := range s.Aliases {
		if !strings.EqualFold(strings.TrimSpace(alias), strings.TrimSpace(category)) {
			continue
		}
		for _, sk := range skills {
			if c.HasSkill(sk) {
				return true
			}
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
