package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nroult/fieldops/core/events"
	coremetrics "github.com/nroult/fieldops/core/metrics"
	"github.com/nroult/fieldops/core/model"
	"github.com/nroult/fieldops/core/notify"
	"github.com/nroult/fieldops/core/store"
)

func requireIDs(interventionID, technicianID string) error {
	if strings.TrimSpace(interventionID) == "" {
		return fmt.Errorf("dispatch: intervention id required")
	}
	if strings.TrimSpace(technicianID) == "" {
		return fmt.Errorf("dispatch: technician id required")
	}
	return nil
}

// Accept claims the intervention for the technician. The claim is a single
// atomic store primitive; losing the race yields a clean success=false
// "assignment lost", and a replay by the winner is idempotent.
func (e *Engine) Accept(ctx context.Context, interventionID, technicianID string) (ActionResult, error) {
	return e.claim(ctx, interventionID, technicianID, "intervention assigned, technician on route")
}

// Go is the self-assignment fast path: accept plus immediate promotion to
// on-route in one step, with the same pending-only guard as Accept.
func (e *Engine) Go(ctx context.Context, interventionID, technicianID string) (ActionResult, error) {
	return e.claim(ctx, interventionID, technicianID, "self-assigned, technician on route")
}

func (e *Engine) claim(ctx context.Context, interventionID, technicianID, wonMessage string) (ActionResult, error) {
	if err := requireIDs(interventionID, technicianID); err != nil {
		return ActionResult{}, err
	}
	now := time.Now()
	out, err := e.store.ClaimAttempt(ctx, interventionID, technicianID, now)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: claim %s for %s: %w", interventionID, technicianID, err)
	}

	res := ActionResult{InterventionID: interventionID, TechnicianID: technicianID}
	switch {
	case out.Won:
		claimsTotal.WithLabelValues("won").Inc()
		rt := time.Duration(out.Intervention.ResponseTimeSeconds) * time.Second
		if e.bus != nil {
			e.bus.Publish(events.ClaimEvent{InterventionID: interventionID, TechnicianID: technicianID, Won: true, ResponseTime: rt})
		}
		e.recordClaim(interventionID, technicianID, true, rt, now)
		e.log.Infof("%s accepted %s after %ds", technicianID, interventionID, out.Intervention.ResponseTimeSeconds)
		for _, sib := range out.CancelledSiblings {
			if nerr := e.notifier.NotifyCancelled(ctx, interventionID, sib, "taken by another technician"); nerr != nil {
				e.log.Warnf("cancellation notice to %s failed: %v", sib, nerr)
			}
		}
		res.Success = true
		res.Message = wonMessage
		res.Status = out.Intervention.Status.String()
		res.ResponseTimeSeconds = out.Intervention.ResponseTimeSeconds
	case out.AlreadyOwn:
		claimsTotal.WithLabelValues("replay").Inc()
		res.Success = true
		res.Message = "already accepted"
		res.Status = out.Intervention.Status.String()
		res.ResponseTimeSeconds = out.Intervention.ResponseTimeSeconds
	default:
		claimsTotal.WithLabelValues("lost").Inc()
		if e.bus != nil {
			e.bus.Publish(events.ClaimEvent{InterventionID: interventionID, TechnicianID: technicianID, Won: false})
		}
		e.recordClaim(interventionID, technicianID, false, 0, now)
		res.Success = false
		res.Message = "assignment lost: intervention no longer available"
	}
	return res, nil
}

// Reject marks the technician's pending offer rejected and escalates to the
// next candidate. The technician stays eligible for future rounds.
func (e *Engine) Reject(ctx context.Context, interventionID, technicianID string) (ActionResult, error) {
	if err := requireIDs(interventionID, technicianID); err != nil {
		return ActionResult{}, err
	}
	now := time.Now()
	ok, err := e.store.MarkAttempt(ctx, interventionID, technicianID, model.AttemptPending, model.AttemptRejected, now)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: reject: %w", err)
	}
	if !ok {
		return ActionResult{
			Success:        false,
			Message:        "no pending offer for technician",
			InterventionID: interventionID,
			TechnicianID:   technicianID,
		}, nil
	}
	e.log.Infof("%s rejected %s", technicianID, interventionID)

	next, err := e.reassignToNext(ctx, interventionID)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{
		Success:                  true,
		Message:                  "offer rejected",
		InterventionID:           interventionID,
		TechnicianID:             technicianID,
		RequiresManualAssignment: next.RequiresManualAssignment,
	}, nil
}

// Decline is a reject plus a permanent exclusion: the technician will never
// again be offered this intervention, in any future round.
func (e *Engine) Decline(ctx context.Context, interventionID, technicianID, reason string) (ActionResult, error) {
	if err := requireIDs(interventionID, technicianID); err != nil {
		return ActionResult{}, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "declined"
	}
	now := time.Now()
	ok, err := e.store.MarkAttempt(ctx, interventionID, technicianID, model.AttemptPending, model.AttemptRejected, now)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: decline: %w", err)
	}
	if !ok && !e.hasAttempt(ctx, interventionID, technicianID) {
		return ActionResult{
			Success:        false,
			Message:        "no offer for technician",
			InterventionID: interventionID,
			TechnicianID:   technicianID,
		}, nil
	}
	if err := e.exclude(ctx, interventionID, technicianID, reason, now); err != nil {
		return ActionResult{}, err
	}
	e.log.Infof("%s declined %s: %s", technicianID, interventionID, reason)

	next, err := e.reassignToNext(ctx, interventionID)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{
		Success:                  true,
		Message:                  "offer declined, technician excluded",
		InterventionID:           interventionID,
		TechnicianID:             technicianID,
		RequiresManualAssignment: next.RequiresManualAssignment,
	}, nil
}

// Cancel handles a technician abandoning a job they had accepted: permanent
// exclusion, all attempts cancelled, and an immediate fresh dispatch round.
func (e *Engine) Cancel(ctx context.Context, interventionID, technicianID, reason string) (ActionResult, error) {
	if err := requireIDs(interventionID, technicianID); err != nil {
		return ActionResult{}, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled"
	}
	iv, err := e.store.GetIntervention(ctx, interventionID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: load intervention %s: %w", interventionID, err)
	}
	if !iv.Assigned() || iv.TechnicianID != technicianID {
		return ActionResult{
			Success:        false,
			Message:        "technician does not hold this intervention",
			InterventionID: interventionID,
			TechnicianID:   technicianID,
		}, nil
	}

	now := time.Now()
	if err := e.exclude(ctx, interventionID, technicianID, reason, now); err != nil {
		return ActionResult{}, err
	}
	if _, err := e.store.CancelActive(ctx, interventionID, now); err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: cancel attempts: %w", err)
	}
	iv.TechnicianID = ""
	iv.Status = model.StatusToReassign
	if err := e.store.SaveIntervention(ctx, iv); err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: release intervention: %w", err)
	}
	e.log.Warnf("%s cancelled %s: %s", technicianID, interventionID, reason)

	round, err := e.Dispatch(ctx, interventionID)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{
		Success:                  true,
		Message:                  "intervention released and re-dispatched",
		InterventionID:           interventionID,
		TechnicianID:             technicianID,
		Status:                   model.StatusToReassign.String(),
		RequiresManualAssignment: round.RequiresManualAssignment,
		Round:                    &round,
	}, nil
}

// CheckTimeout expires pending offers whose response window has elapsed and
// escalates to the next candidate. It is idempotent and safe to run from an
// external poller at any cadence; a late sweep only postpones reassignment.
func (e *Engine) CheckTimeout(ctx context.Context, interventionID string) (ActionResult, error) {
	if strings.TrimSpace(interventionID) == "" {
		return ActionResult{}, fmt.Errorf("dispatch: intervention id required")
	}
	attempts, err := e.store.Attempts(ctx, interventionID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: load attempts: %w", err)
	}

	now := time.Now()
	expired := 0
	for _, a := range attempts {
		if !a.Expired(now) {
			continue
		}
		ok, err := e.store.MarkAttempt(ctx, interventionID, a.TechnicianID, model.AttemptPending, model.AttemptTimeout, now)
		if err != nil {
			return ActionResult{}, fmt.Errorf("dispatch: expire attempt: %w", err)
		}
		if ok {
			expired++
		}
	}
	res := ActionResult{
		Success:         true,
		InterventionID:  interventionID,
		ExpiredAttempts: expired,
	}
	if expired == 0 {
		res.Message = "no expired offers"
		return res, nil
	}

	attemptTimeouts.Add(float64(expired))
	if e.bus != nil {
		e.bus.Publish(events.TimeoutEvent{InterventionID: interventionID, Expired: expired})
	}
	if tr, ok := e.sink.(coremetrics.TimeoutRecorder); ok {
		if err := tr.RecordTimeout(coremetrics.TimeoutResult{InterventionID: interventionID, Expired: expired, Time: now}); err != nil {
			e.log.Errorf("metrics error: %v", err)
		}
	}
	e.log.Infof("%d offers for %s timed out", expired, interventionID)

	next, err := e.reassignToNext(ctx, interventionID)
	if err != nil {
		return ActionResult{}, err
	}
	res.Message = fmt.Sprintf("%d offers timed out", expired)
	res.RequiresManualAssignment = next.RequiresManualAssignment
	return res, nil
}

// reassignToNext escalates to the next never-notified attempt in rank
// order: a single-candidate waterfall, unlike the initial broadcast round.
// When the queue is exhausted the intervention returns to the open pool
// flagged for manual assignment.
func (e *Engine) reassignToNext(ctx context.Context, interventionID string) (ActionResult, error) {
	iv, err := e.store.GetIntervention(ctx, interventionID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: load intervention %s: %w", interventionID, err)
	}
	if iv.Assigned() && iv.Status != model.StatusAssigned {
		// Someone already claimed and is past the offer stage.
		return ActionResult{Success: true, Message: "intervention already assigned", InterventionID: interventionID}, nil
	}

	attempts, err := e.store.Attempts(ctx, interventionID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: load attempts: %w", err)
	}
	var next *model.DispatchAttempt
	for i := range attempts {
		a := attempts[i]
		if a.Status == model.AttemptPending && !a.Notified() {
			if next == nil || a.Order < next.Order {
				next = &attempts[i]
			}
		}
	}

	if next == nil {
		iv.TechnicianID = ""
		iv.Status = model.StatusNew
		iv.RequiresManualAssignment = true
		if err := e.store.SaveIntervention(ctx, iv); err != nil {
			return ActionResult{}, fmt.Errorf("dispatch: flag manual assignment: %w", err)
		}
		e.log.Warnf("no remaining candidates for %s, manual assignment required", interventionID)
		return ActionResult{
			Success:                  false,
			Message:                  "no remaining candidates, manual assignment required",
			InterventionID:           interventionID,
			RequiresManualAssignment: true,
		}, nil
	}

	now := time.Now()
	next.NotifiedAt = now
	next.TimeoutAt = now.Add(e.offerTimeout)
	if err := e.store.UpdateAttempt(ctx, *next); err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: notify next attempt: %w", err)
	}
	iv.TechnicianID = next.TechnicianID
	iv.Status = model.StatusAssigned
	if err := e.store.SaveIntervention(ctx, iv); err != nil {
		return ActionResult{}, fmt.Errorf("dispatch: assign next candidate: %w", err)
	}

	if err := e.notifier.NotifyOffer(ctx, notify.OfferNotice{
		InterventionID: iv.ID,
		TechnicianID:   next.TechnicianID,
		Category:       iv.Category,
		Score:          next.Score,
		DistanceKm:     next.DistanceKm,
		ETA:            next.TravelTime,
		ExpiresAt:      next.TimeoutAt,
	}); err != nil {
		notifyFailure.Inc()
		e.log.Warnf("offer notification to %s failed: %v", next.TechnicianID, err)
	} else {
		notifySuccess.Inc()
	}
	if e.bus != nil {
		e.bus.Publish(events.OfferEvent{
			InterventionID: iv.ID,
			RoundID:        next.RoundID,
			TechnicianID:   next.TechnicianID,
			Order:          next.Order,
			Score:          next.Score,
			Delivered:      true,
		})
	}
	e.log.Infof("escalated %s to %s (rank %d)", interventionID, next.TechnicianID, next.Order)
	return ActionResult{
		Success:        true,
		Message:        "offer escalated to next candidate",
		InterventionID: interventionID,
		TechnicianID:   next.TechnicianID,
	}, nil
}

// exclude appends to the permanent ledger and fans the event out.
func (e *Engine) exclude(ctx context.Context, interventionID, technicianID, reason string, now time.Time) error {
	rec := model.ExclusionRecord{
		InterventionID: interventionID,
		TechnicianID:   technicianID,
		Reason:         reason,
		RecordedAt:     now,
	}
	if err := e.store.AddExclusion(ctx, rec); err != nil {
		return fmt.Errorf("dispatch: write exclusion: %w", err)
	}
	exclusionsTotal.Inc()
	if e.bus != nil {
		e.bus.Publish(events.ExclusionEvent{InterventionID: interventionID, TechnicianID: technicianID, Reason: reason})
	}
	if er, ok := e.sink.(coremetrics.ExclusionRecorder); ok {
		if err := er.RecordExclusion(coremetrics.ExclusionResult{InterventionID: interventionID, TechnicianID: technicianID, Reason: reason, Time: now}); err != nil {
			e.log.Errorf("metrics error: %v", err)
		}
	}
	return nil
}

// hasAttempt reports whether the technician ever received an offer for the
// intervention.
func (e *Engine) hasAttempt(ctx context.Context, interventionID, technicianID string) bool {
	attempts, err := e.store.Attempts(ctx, interventionID)
	if err != nil {
		return false
	}
	for _, a := range attempts {
		if a.TechnicianID == technicianID {
			return true
		}
	}
	return false
}

// recordClaim forwards the claim outcome to the metrics sink when it
// supports claims.
func (e *Engine) recordClaim(interventionID, technicianID string, won bool, rt time.Duration, now time.Time) {
	cr, ok := e.sink.(coremetrics.ClaimRecorder)
	if !ok {
		return
	}
	if err := cr.RecordClaim(coremetrics.ClaimResult{
		InterventionID: interventionID,
		TechnicianID:   technicianID,
		Won:            won,
		ResponseTime:   rt,
		Time:           now,
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
}

// AttemptHistory returns the full offer history for the intervention, for
// audit and UI purposes.
func (e *Engine) AttemptHistory(ctx context.Context, interventionID string) ([]model.DispatchAttempt, error) {
	if strings.TrimSpace(interventionID) == "" {
		return nil, fmt.Errorf("dispatch: intervention id required")
	}
	attempts, err := e.store.Attempts(ctx, interventionID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load attempts: %w", err)
	}
	return attempts, nil
}

// SweepTimeouts runs CheckTimeout over every intervention that still has a
// pending attempt. Used by the external timeout poller.
func (e *Engine) SweepTimeouts(ctx context.Context) (int, error) {
	ids, err := e.store.PendingInterventions(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch: list pending interventions: %w", err)
	}
	total := 0
	for _, id := range ids {
		res, err := e.CheckTimeout(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return total, err
		}
		total += res.ExpiredAttempts
	}
	return total, nil
}
