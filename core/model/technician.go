package model

import "strings"

// Technician describes a field technician as exposed by the technician
// directory. Only approved, active, geolocated technicians are eligible for
// dispatch.
type Technician struct {
	ID        string
	Approved  bool
	Active    bool
	Available bool

	Latitude  float64
	Longitude float64

	Skills []string

	// MaxActiveJobs caps concurrent assignments; zero means the
	// dispatcher default applies.
	MaxActiveJobs int
}

// Geolocated reports whether the technician has a usable position.
func (t Technician) Geolocated() bool {
	return t.Latitude != 0 || t.Longitude != 0
}

// HasSkill reports whether the skill set contains the given skill,
// case-insensitively.
func (t Technician) HasSkill(skill string) bool {
	for _, s := range t.Skills {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(skill)) {
			return true
		}
	}
	return false
}

// CandidateView is the ephemeral, scoring-time join of the technician
// directory, workload source and rating source. It is never persisted.
type CandidateView struct {
	TechnicianID  string
	Latitude      float64
	Longitude     float64
	Skills        []string
	ActiveJobs    int
	AverageRating float64
}

// HasSkill reports whether the candidate's skill set contains the skill.
func (c CandidateView) HasSkill(skill string) bool {
	return Technician{Skills: c.Skills}.HasSkill(skill)
}
