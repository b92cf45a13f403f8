package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nroult/fieldops/core/model"
)

func dispatchRound(t *testing.T, fx *engineFixture, id string) RoundResult {
	t.Helper()
	seed(t, fx.store, id)
	res, err := fx.engine.Dispatch(context.Background(), id)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Success {
		t.Fatalf("round failed: %+v", res)
	}
	return res
}

func TestAcceptFirstWinsUnderConcurrency(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-race")

	var wg sync.WaitGroup
	results := make([]ActionResult, len(round.Offers))
	for i, o := range round.Offers {
		wg.Add(1)
		go func(i int, tech string) {
			defer wg.Done()
			res, err := fx.engine.Accept(context.Background(), "iv-race", tech)
			if err != nil {
				t.Errorf("Accept %s: %v", tech, err)
				return
			}
			results[i] = res
		}(i, o.TechnicianID)
	}
	wg.Wait()

	winners := 0
	var winner string
	for i, res := range results {
		if res.Success {
			winners++
			winner = round.Offers[i].TechnicianID
		} else if res.Message != "assignment lost: intervention no longer available" {
			t.Fatalf("loser got unexpected message: %+v", res)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	iv, _ := fx.store.GetIntervention(context.Background(), "iv-race")
	if iv.Status != model.StatusOnRoute || iv.TechnicianID != winner {
		t.Fatalf("intervention not held by winner: %+v", iv)
	}
	// Losers with pending offers were told the job is gone.
	if len(fx.notifier.Cancels) != 2 {
		t.Fatalf("expected 2 cancellation notices, got %v", fx.notifier.Cancels)
	}
}

func TestAcceptReplayIsIdempotent(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-1")
	tech := round.Offers[0].TechnicianID

	first, err := fx.engine.Accept(context.Background(), "iv-1", tech)
	if err != nil || !first.Success {
		t.Fatalf("Accept: %+v err=%v", first, err)
	}
	replay, err := fx.engine.Accept(context.Background(), "iv-1", tech)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Success || replay.Message != "already accepted" {
		t.Fatalf("expected idempotent replay, got %+v", replay)
	}
}

func TestGoSelfAssignment(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-1")
	tech := round.Offers[1].TechnicianID

	res, err := fx.engine.Go(context.Background(), "iv-1", tech)
	if err != nil {
		t.Fatalf("Go: %v", err)
	}
	if !res.Success || res.Status != model.StatusOnRoute.String() {
		t.Fatalf("expected direct on-route assignment, got %+v", res)
	}
}

func TestRejectKeepsTechnicianEligible(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-1")
	tech := round.Offers[2].TechnicianID

	res, err := fx.engine.Reject(context.Background(), "iv-1", tech)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !res.Success {
		t.Fatalf("reject refused: %+v", res)
	}
	// No exclusion is written: the technician may appear in later rounds.
	recs, _ := fx.store.Exclusions(context.Background(), "iv-1")
	if len(recs) != 0 {
		t.Fatalf("reject must not write exclusions, got %v", recs)
	}
	// Rejecting twice is a clean business refusal.
	res, err = fx.engine.Reject(context.Background(), "iv-1", tech)
	if err != nil {
		t.Fatalf("second reject: %v", err)
	}
	if res.Success {
		t.Fatalf("expected refusal for second reject, got %+v", res)
	}
}

func TestDeclineAllLeadsToManualAssignment(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-1")

	var last ActionResult
	for _, o := range round.Offers {
		var err error
		last, err = fx.engine.Decline(context.Background(), "iv-1", o.TechnicianID, "too far")
		if err != nil {
			t.Fatalf("Decline %s: %v", o.TechnicianID, err)
		}
		if !last.Success {
			t.Fatalf("decline refused: %+v", last)
		}
	}
	if !last.RequiresManualAssignment {
		t.Fatalf("expected manual assignment after exhausting candidates, got %+v", last)
	}
	iv, _ := fx.store.GetIntervention(context.Background(), "iv-1")
	if iv.Status != model.StatusNew || !iv.RequiresManualAssignment || iv.TechnicianID != "" {
		t.Fatalf("intervention not flagged for manual assignment: %+v", iv)
	}
	recs, _ := fx.store.Exclusions(context.Background(), "iv-1")
	if len(recs) != 3 {
		t.Fatalf("expected 3 exclusion records, got %d", len(recs))
	}
}

func TestExclusionsSurviveRedispatch(t *testing.T) {
	fx := newEngineFixture(t, pool(4), Config{})
	round := dispatchRound(t, fx, "iv-1")
	declined := round.Offers[0].TechnicianID
	if _, err := fx.engine.Decline(context.Background(), "iv-1", declined, ""); err != nil {
		t.Fatalf("Decline: %v", err)
	}

	res, err := fx.engine.Dispatch(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("re-Dispatch: %v", err)
	}
	for _, o := range res.Offers {
		if o.TechnicianID == declined {
			t.Fatalf("declined technician re-offered: %+v", res.Offers)
		}
	}
}

func TestCancelTriggersFreshRound(t *testing.T) {
	fx := newEngineFixture(t, pool(4), Config{})
	round := dispatchRound(t, fx, "iv-1")
	holder := round.Offers[0].TechnicianID
	if _, err := fx.engine.Accept(context.Background(), "iv-1", holder); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	res, err := fx.engine.Cancel(context.Background(), "iv-1", holder, "vehicle breakdown")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !res.Success || res.Round == nil || !res.Round.Success {
		t.Fatalf("expected immediate fresh round, got %+v", res)
	}
	// The canceller is permanently excluded from the new round.
	for _, o := range res.Round.Offers {
		if o.TechnicianID == holder {
			t.Fatalf("canceller re-offered: %+v", res.Round.Offers)
		}
	}
	recs, _ := fx.store.Exclusions(context.Background(), "iv-1")
	if len(recs) != 1 || recs[0].TechnicianID != holder {
		t.Fatalf("expected exclusion for canceller, got %v", recs)
	}
}

func TestCancelByNonHolderRefused(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-1")
	holder := round.Offers[0].TechnicianID
	other := round.Offers[1].TechnicianID
	if _, err := fx.engine.Accept(context.Background(), "iv-1", holder); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	res, err := fx.engine.Cancel(context.Background(), "iv-1", other, "nope")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Success {
		t.Fatalf("expected refusal for non-holder, got %+v", res)
	}
}

func TestCheckTimeoutExpiresAndFlagsManual(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{OfferTimeoutSeconds: 1})
	dispatchRound(t, fx, "iv-1")

	// Force every offer past its window.
	ctx := context.Background()
	attempts, _ := fx.store.Attempts(ctx, "iv-1")
	for _, a := range attempts {
		a.TimeoutAt = time.Now().Add(-time.Second)
		if err := fx.store.UpdateAttempt(ctx, a); err != nil {
			t.Fatalf("UpdateAttempt: %v", err)
		}
	}

	res, err := fx.engine.CheckTimeout(ctx, "iv-1")
	if err != nil {
		t.Fatalf("CheckTimeout: %v", err)
	}
	if res.ExpiredAttempts != 3 || !res.RequiresManualAssignment {
		t.Fatalf("expected 3 expirations and manual flag, got %+v", res)
	}

	// A second sweep finds nothing: the check is idempotent.
	res, err = fx.engine.CheckTimeout(ctx, "iv-1")
	if err != nil {
		t.Fatalf("second CheckTimeout: %v", err)
	}
	if res.ExpiredAttempts != 0 {
		t.Fatalf("expected idempotent sweep, got %+v", res)
	}
}

func TestTimeoutEscalatesToWaitingCandidate(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	seed(t, fx.store, "iv-1")
	ctx := context.Background()

	// A round with a queued backup: the first offer was sent, the second
	// waits unnotified in rank order.
	now := time.Now()
	roundID := uuid.NewString()
	err := fx.store.CreateAttempts(ctx, []model.DispatchAttempt{
		{
			ID: uuid.NewString(), RoundID: roundID, InterventionID: "iv-1",
			TechnicianID: "a-tech", Score: 95, Status: model.AttemptPending,
			Order: 1, NotifiedAt: now.Add(-10 * time.Minute), TimeoutAt: now.Add(-5 * time.Minute),
		},
		{
			ID: uuid.NewString(), RoundID: roundID, InterventionID: "iv-1",
			TechnicianID: "b-tech", Score: 90, Status: model.AttemptPending,
			Order: 2,
		},
	})
	if err != nil {
		t.Fatalf("CreateAttempts: %v", err)
	}

	res, err := fx.engine.CheckTimeout(ctx, "iv-1")
	if err != nil {
		t.Fatalf("CheckTimeout: %v", err)
	}
	if res.ExpiredAttempts != 1 || res.RequiresManualAssignment {
		t.Fatalf("expected single expiration with escalation, got %+v", res)
	}

	// The backup got armed and offered; the intervention waits on them.
	attempts, _ := fx.store.Attempts(ctx, "iv-1")
	for _, a := range attempts {
		switch a.TechnicianID {
		case "a-tech":
			if a.Status != model.AttemptTimeout {
				t.Fatalf("expected timeout for a-tech, got %s", a.Status)
			}
		case "b-tech":
			if a.Status != model.AttemptPending || !a.Notified() || a.TimeoutAt.IsZero() {
				t.Fatalf("backup not armed: %+v", a)
			}
		}
	}
	if !fx.notifier.OfferedTo("b-tech") {
		t.Fatal("backup was not notified")
	}
	iv, _ := fx.store.GetIntervention(ctx, "iv-1")
	if iv.Status != model.StatusAssigned || iv.TechnicianID != "b-tech" {
		t.Fatalf("intervention not waiting on backup: %+v", iv)
	}

	// The backup accepts: the same atomic claim flips their pending
	// attempt and promotes the intervention.
	ares, err := fx.engine.Accept(ctx, "iv-1", "b-tech")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !ares.Success || ares.Status != model.StatusOnRoute.String() {
		t.Fatalf("backup accept failed: %+v", ares)
	}
}

func TestSweepTimeouts(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	ctx := context.Background()
	for _, id := range []string{"iv-a", "iv-b"} {
		dispatchRound(t, fx, id)
		attempts, _ := fx.store.Attempts(ctx, id)
		for _, a := range attempts {
			a.TimeoutAt = time.Now().Add(-time.Second)
			if err := fx.store.UpdateAttempt(ctx, a); err != nil {
				t.Fatalf("UpdateAttempt: %v", err)
			}
		}
	}

	n, err := fx.engine.SweepTimeouts(ctx)
	if err != nil {
		t.Fatalf("SweepTimeouts: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 expirations across interventions, got %d", n)
	}
}

func TestAttemptHistory(t *testing.T) {
	fx := newEngineFixture(t, pool(3), Config{})
	round := dispatchRound(t, fx, "iv-1")
	if _, err := fx.engine.Reject(context.Background(), "iv-1", round.Offers[0].TechnicianID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	history, err := fx.engine.AttemptHistory(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("AttemptHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected full history, got %d", len(history))
	}
	rejected := 0
	for _, a := range history {
		if a.Status == model.AttemptRejected {
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("expected one rejected attempt in history, got %d", rejected)
	}
}
