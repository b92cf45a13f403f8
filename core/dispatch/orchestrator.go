package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nroult/fieldops/core/events"
	"github.com/nroult/fieldops/core/logger"
	coremetrics "github.com/nroult/fieldops/core/metrics"
	"github.com/nroult/fieldops/core/model"
	"github.com/nroult/fieldops/core/notify"
	"github.com/nroult/fieldops/core/store"
	"github.com/nroult/fieldops/internal/eventbus"
)

// Engine runs dispatch rounds and the assignment lifecycle. It holds no
// in-process state between calls; everything persistent lives behind the
// store.
type Engine struct {
	store        store.Store
	filter       *CandidateFilter
	scorer       Scorer
	notifier     notify.Notifier
	sink         coremetrics.MetricsSink
	bus          eventbus.EventBus
	log          logger.Logger
	roundSize    int
	offerTimeout time.Duration
}

// nopLogger keeps the engine usable when no logger is wired.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

// NewEngine creates an engine over the given store and collaborators. sink,
// bus and log may be nil.
func NewEngine(st store.Store, filter *CandidateFilter, scorer Scorer, notifier notify.Notifier, sink coremetrics.MetricsSink, bus eventbus.EventBus, log logger.Logger, cfg Config) (*Engine, error) {
	if st == nil || filter == nil || notifier == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: config: %w", err)
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		store:        st,
		filter:       filter,
		scorer:       scorer,
		notifier:     notifier,
		sink:         sink,
		bus:          bus,
		log:          log,
		roundSize:    cfg.RoundSize,
		offerTimeout: time.Duration(cfg.OfferTimeoutSeconds) * time.Second,
	}, nil
}

// Dispatch runs one round for the intervention: supersede stale offers,
// filter and score candidates, then notify the top candidates in parallel.
// The intervention stays unassigned until a technician claims it; the round
// is a broadcast, first accept wins.
func (e *Engine) Dispatch(ctx context.Context, interventionID string) (RoundResult, error) {
	if strings.TrimSpace(interventionID) == "" {
		return RoundResult{}, fmt.Errorf("dispatch: intervention id required")
	}
	iv, err := e.store.GetIntervention(ctx, interventionID)
	if err != nil {
		return RoundResult{}, fmt.Errorf("dispatch: load intervention %s: %w", interventionID, err)
	}
	if iv.Assigned() {
		roundsTotal.WithLabelValues("already_assigned").Inc()
		return RoundResult{
			Success:            true,
			Message:            "intervention already assigned",
			InterventionID:     iv.ID,
			AssignedTechnician: iv.TechnicianID,
		}, nil
	}

	now := time.Now()
	if n, err := e.store.CancelPending(ctx, iv.ID, now); err != nil {
		return RoundResult{}, fmt.Errorf("dispatch: supersede pending attempts: %w", err)
	} else if n > 0 {
		e.log.Infof("superseded %d pending attempts for %s", n, iv.ID)
	}

	excluded, err := e.exclusionSet(ctx, iv.ID)
	if err != nil {
		return RoundResult{}, err
	}

	fr, err := e.filter.Filter(ctx, iv, excluded)
	if err != nil {
		return RoundResult{}, err
	}
	roundCandidates.Observe(float64(len(fr.Candidates)))
	if fr.Empty() {
		roundsTotal.WithLabelValues("no_candidates").Inc()
		e.log.Warnf("no available technicians for %s (%s)", iv.ID, fr.ReasonCode)
		return RoundResult{
			Success:                  false,
			Message:                  "no available technicians",
			InterventionID:           iv.ID,
			RequiresManualAssignment: true,
		}, nil
	}

	ranked := e.scorer.Rank(iv, fr.Candidates)
	k := e.roundSize
	if len(ranked) < k {
		k = len(ranked)
	}
	top := ranked[:k]

	roundID := uuid.NewString()
	timeoutAt := now.Add(e.offerTimeout)
	attempts := make([]model.DispatchAttempt, 0, k)
	for i, c := range top {
		attempts = append(attempts, model.DispatchAttempt{
			ID:             uuid.NewString(),
			RoundID:        roundID,
			InterventionID: iv.ID,
			TechnicianID:   c.TechnicianID,
			Score:          c.Score,
			Breakdown:      c.Breakdown,
			DistanceKm:     c.DistanceKm,
			TravelTime:     c.TravelTime,
			Status:         model.AttemptPending,
			Order:          i + 1,
			NotifiedAt:     now,
			TimeoutAt:      timeoutAt,
		})
	}
	if err := e.store.CreateAttempts(ctx, attempts); err != nil {
		return RoundResult{}, fmt.Errorf("dispatch: create attempts: %w", err)
	}
	offersCreated.Add(float64(len(attempts)))

	// A cancellation recovery round returns the intervention to the
	// open pool.
	if iv.Status == model.StatusToReassign {
		iv.Status = model.StatusNew
		if err := e.store.SaveIntervention(ctx, iv); err != nil {
			return RoundResult{}, fmt.Errorf("dispatch: reopen intervention: %w", err)
		}
	}

	offers := e.notifyRound(ctx, iv, roundID, attempts)

	if e.bus != nil {
		notified := make([]string, 0, len(attempts))
		for _, a := range attempts {
			notified = append(notified, a.TechnicianID)
		}
		e.bus.Publish(events.RoundEvent{
			InterventionID: iv.ID,
			RoundID:        roundID,
			Candidates:     len(fr.Candidates),
			Notified:       notified,
		})
	}
	e.recordOffers(roundID, iv.ID, offers, now)
	roundsTotal.WithLabelValues("dispatched").Inc()
	e.log.Infof("dispatched %s: %d offers from %d candidates", iv.ID, len(offers), len(fr.Candidates))

	return RoundResult{
		Success:        true,
		Message:        fmt.Sprintf("%d technicians notified", len(offers)),
		InterventionID: iv.ID,
		RoundID:        roundID,
		Offers:         offers,
	}, nil
}

// exclusionSet builds the cumulative set of technicians permanently banned
// from this intervention.
func (e *Engine) exclusionSet(ctx context.Context, interventionID string) (map[string]bool, error) {
	recs, err := e.store.Exclusions(ctx, interventionID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load exclusions: %w", err)
	}
	set := make(map[string]bool, len(recs))
	for _, r := range recs {
		set[r.TechnicianID] = true
	}
	return set, nil
}

// notifyRound delivers the offers concurrently. Delivery is best effort: a
// failed notification is logged and reported but never unwinds the created
// attempts.
func (e *Engine) notifyRound(ctx context.Context, iv model.Intervention, roundID string, attempts []model.DispatchAttempt) []OfferSummary {
	offers := make([]OfferSummary, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a model.DispatchAttempt) {
			defer wg.Done()
			err := e.notifier.NotifyOffer(ctx, notify.OfferNotice{
				InterventionID: iv.ID,
				TechnicianID:   a.TechnicianID,
				Category:       iv.Category,
				Score:          a.Score,
				DistanceKm:     a.DistanceKm,
				ETA:            a.TravelTime,
				ExpiresAt:      a.TimeoutAt,
			})
			if err != nil {
				notifyFailure.Inc()
				e.log.Warnf("offer notification to %s failed: %v", a.TechnicianID, err)
			} else {
				notifySuccess.Inc()
			}
			offers[i] = OfferSummary{
				TechnicianID: a.TechnicianID,
				Order:        a.Order,
				Score:        a.Score,
				Breakdown:    a.Breakdown,
				DistanceKm:   a.DistanceKm,
				ETA:          a.TravelTime,
				Delivered:    err == nil,
			}
			if e.bus != nil {
				e.bus.Publish(events.OfferEvent{
					InterventionID: iv.ID,
					RoundID:        roundID,
					TechnicianID:   a.TechnicianID,
					Order:          a.Order,
					Score:          a.Score,
					Delivered:      err == nil,
					Err:            err,
				})
			}
		}(i, a)
	}
	wg.Wait()
	return offers
}

// recordOffers forwards the round to the metrics sink.
func (e *Engine) recordOffers(roundID, interventionID string, offers []OfferSummary, now time.Time) {
	recs := make([]coremetrics.OfferResult, 0, len(offers))
	for _, o := range offers {
		recs = append(recs, coremetrics.OfferResult{
			InterventionID: interventionID,
			RoundID:        roundID,
			TechnicianID:   o.TechnicianID,
			Order:          o.Order,
			Score:          o.Score,
			DistanceKm:     o.DistanceKm,
			Delivered:      o.Delivered,
			Time:           now,
		})
	}
	if err := e.sink.RecordOfferResult(recs); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
}
