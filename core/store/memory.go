package store

import (
	"context"
	"sync"
	"time"

	"github.com/nroult/fieldops/core/model"
)

// MemoryStore is an in-process Store guarded by a mutex. It backs tests and
// single-process deployments; the claim primitive relies on the lock for its
// atomicity.
type MemoryStore struct {
	mu            sync.RWMutex
	interventions map[string]model.Intervention
	attempts      map[string][]model.DispatchAttempt // keyed by intervention id
	exclusions    map[string][]model.ExclusionRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interventions: make(map[string]model.Intervention),
		attempts:      make(map[string][]model.DispatchAttempt),
		exclusions:    make(map[string][]model.ExclusionRecord),
	}
}

// GetIntervention returns the intervention or ErrNotFound.
func (s *MemoryStore) GetIntervention(_ context.Context, id string) (model.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interventions[id]
	if !ok {
		return model.Intervention{}, ErrNotFound
	}
	return iv, nil
}

// SaveIntervention inserts or replaces the intervention.
func (s *MemoryStore) SaveIntervention(_ context.Context, iv model.Intervention) error {
	s.mu.Lock()
	s.interventions[iv.ID] = iv
	s.mu.Unlock()
	return nil
}

// CountActiveJobs counts interventions currently held by the technician.
func (s *MemoryStore) CountActiveJobs(_ context.Context, technicianID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, iv := range s.interventions {
		if iv.TechnicianID == technicianID && iv.Status.RequiresTechnician() && iv.Status != model.StatusCompleted {
			n++
		}
	}
	return n, nil
}

// PendingInterventions lists intervention ids with at least one pending attempt.
func (s *MemoryStore) PendingInterventions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, atts := range s.attempts {
		for _, a := range atts {
			if a.Status == model.AttemptPending {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

// CreateAttempts appends the attempts to their intervention's history.
func (s *MemoryStore) CreateAttempts(_ context.Context, attempts []model.DispatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attempts {
		s.attempts[a.InterventionID] = append(s.attempts[a.InterventionID], a)
	}
	return nil
}

// Attempts returns the offer history for the intervention in insertion order.
func (s *MemoryStore) Attempts(_ context.Context, interventionID string) ([]model.DispatchAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	atts := s.attempts[interventionID]
	cp := make([]model.DispatchAttempt, len(atts))
	copy(cp, atts)
	return cp, nil
}

// UpdateAttempt replaces the attempt identified by its id.
func (s *MemoryStore) UpdateAttempt(_ context.Context, attempt model.DispatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	atts := s.attempts[attempt.InterventionID]
	for i := range atts {
		if atts[i].ID == attempt.ID {
			atts[i] = attempt
			return nil
		}
	}
	return ErrNotFound
}

// CancelPending marks all pending attempts cancelled.
func (s *MemoryStore) CancelPending(_ context.Context, interventionID string, now time.Time) (int, error) {
	return s.cancel(interventionID, now, false), nil
}

// CancelActive marks pending and accepted attempts cancelled.
func (s *MemoryStore) CancelActive(_ context.Context, interventionID string, now time.Time) (int, error) {
	return s.cancel(interventionID, now, true), nil
}

func (s *MemoryStore) cancel(interventionID string, now time.Time, includeAccepted bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	atts := s.attempts[interventionID]
	for i := range atts {
		if atts[i].Status == model.AttemptPending || (includeAccepted && atts[i].Status == model.AttemptAccepted) {
			atts[i].Status = model.AttemptCancelled
			atts[i].RespondedAt = now
			n++
		}
	}
	return n
}

// MarkAttempt transitions the technician's attempt only if it still holds the
// expected status.
func (s *MemoryStore) MarkAttempt(_ context.Context, interventionID, technicianID string, from, to model.AttemptStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	atts := s.attempts[interventionID]
	for i := range atts {
		if atts[i].TechnicianID == technicianID && atts[i].Status == from {
			atts[i].Status = to
			atts[i].RespondedAt = now
			return true, nil
		}
	}
	return false, nil
}

// ClaimAttempt implements the atomic first-accept-wins primitive under the
// store lock.
func (s *MemoryStore) ClaimAttempt(_ context.Context, interventionID, technicianID string, now time.Time) (ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interventions[interventionID]
	if !ok {
		return ClaimOutcome{}, ErrNotFound
	}

	atts := s.attempts[interventionID]
	claimed := false
	for i := range atts {
		if atts[i].TechnicianID == technicianID && atts[i].Status == model.AttemptPending {
			atts[i].Status = model.AttemptAccepted
			atts[i].RespondedAt = now
			claimed = true
			break
		}
	}
	if !claimed {
		// No pending offer left for the caller. A replay by the current
		// holder is idempotent; anyone else is simply too late.
		if iv.TechnicianID == technicianID && iv.Status.RequiresTechnician() {
			return ClaimOutcome{AlreadyOwn: true, Intervention: iv}, nil
		}
		return ClaimOutcome{}, nil
	}
	var siblings []string
	for i := range atts {
		if atts[i].TechnicianID != technicianID && atts[i].Status == model.AttemptPending {
			atts[i].Status = model.AttemptCancelled
			atts[i].RespondedAt = now
			siblings = append(siblings, atts[i].TechnicianID)
		}
	}

	iv.TechnicianID = technicianID
	iv.Status = model.StatusOnRoute
	iv.AcceptedAt = now
	iv.ResponseTimeSeconds = int64(now.Sub(iv.CreatedAt).Seconds())
	iv.RequiresManualAssignment = false
	s.interventions[interventionID] = iv
	return ClaimOutcome{Won: true, Intervention: iv, CancelledSiblings: siblings}, nil
}

// AddExclusion appends a record to the permanent ledger.
func (s *MemoryStore) AddExclusion(_ context.Context, rec model.ExclusionRecord) error {
	s.mu.Lock()
	s.exclusions[rec.InterventionID] = append(s.exclusions[rec.InterventionID], rec)
	s.mu.Unlock()
	return nil
}

// Exclusions returns the ledger entries for the intervention.
func (s *MemoryStore) Exclusions(_ context.Context, interventionID string) ([]model.ExclusionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.exclusions[interventionID]
	cp := make([]model.ExclusionRecord, len(recs))
	copy(cp, recs)
	return cp, nil
}
