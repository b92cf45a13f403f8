package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nroult/fieldops/core/events"
	coremetrics "github.com/nroult/fieldops/core/metrics"
	"github.com/nroult/fieldops/internal/eventbus"
)

// busSink captures lifecycle events recorded through the collector goroutine.
type busSink struct {
	mu         sync.Mutex
	claims     []coremetrics.ClaimResult
	timeouts   []coremetrics.TimeoutResult
	exclusions []coremetrics.ExclusionResult
}

func (s *busSink) RecordOfferResult([]coremetrics.OfferResult) error { return nil }

func (s *busSink) RecordClaim(res coremetrics.ClaimResult) error {
	s.mu.Lock()
	s.claims = append(s.claims, res)
	s.mu.Unlock()
	return nil
}

func (s *busSink) RecordTimeout(res coremetrics.TimeoutResult) error {
	s.mu.Lock()
	s.timeouts = append(s.timeouts, res)
	s.mu.Unlock()
	return nil
}

func (s *busSink) RecordExclusion(res coremetrics.ExclusionResult) error {
	s.mu.Lock()
	s.exclusions = append(s.exclusions, res)
	s.mu.Unlock()
	return nil
}

func (s *busSink) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims), len(s.timeouts), len(s.exclusions)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEventCollectorRecordsLifecycleEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &busSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	bus.Publish(events.ClaimEvent{InterventionID: "iv-1", TechnicianID: "t1", Won: true, ResponseTime: 30 * time.Second})
	bus.Publish(events.TimeoutEvent{InterventionID: "iv-1", Expired: 2})
	bus.Publish(events.ExclusionEvent{InterventionID: "iv-1", TechnicianID: "t2", Reason: "declined"})

	waitFor(t, func() bool {
		c, to, ex := sink.counts()
		return c == 1 && to == 1 && ex == 1
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.claims[0].TechnicianID != "t1" || !sink.claims[0].Won {
		t.Fatalf("claim not carried over: %+v", sink.claims[0])
	}
	if sink.timeouts[0].Expired != 2 {
		t.Fatalf("timeout not carried over: %+v", sink.timeouts[0])
	}
	if sink.exclusions[0].Reason != "declined" {
		t.Fatalf("exclusion not carried over: %+v", sink.exclusions[0])
	}
}

func TestEventCollectorStopsOnCancel(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &busSink{}
	ctx, cancel := context.WithCancel(context.Background())
	StartEventCollector(ctx, bus, sink)
	cancel()

	// Give the collector time to unsubscribe, then verify later events
	// are no longer recorded.
	time.Sleep(50 * time.Millisecond)
	baseline, _, _ := sink.counts()
	bus.Publish(events.ClaimEvent{InterventionID: "iv-1", TechnicianID: "t1"})
	time.Sleep(50 * time.Millisecond)
	if c, _, _ := sink.counts(); c != baseline {
		t.Fatalf("collector still recording after cancel, claims went %d -> %d", baseline, c)
	}
}
