package metrics

import (
	"context"
	"time"

	"github.com/nroult/fieldops/core/events"
	coremetrics "github.com/nroult/fieldops/core/metrics"
	"github.com/nroult/fieldops/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// dispatch lifecycle events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.ClaimEvent:
					if r, ok := sink.(coremetrics.ClaimRecorder); ok {
						_ = r.RecordClaim(coremetrics.ClaimResult{
							InterventionID: e.InterventionID,
							TechnicianID:   e.TechnicianID,
							Won:            e.Won,
							ResponseTime:   e.ResponseTime,
							Time:           time.Now(),
						})
					}
				case events.TimeoutEvent:
					if r, ok := sink.(coremetrics.TimeoutRecorder); ok {
						_ = r.RecordTimeout(coremetrics.TimeoutResult{
							InterventionID: e.InterventionID,
							Expired:        e.Expired,
							Time:           time.Now(),
						})
					}
				case events.ExclusionEvent:
					if r, ok := sink.(coremetrics.ExclusionRecorder); ok {
						_ = r.RecordExclusion(coremetrics.ExclusionResult{
							InterventionID: e.InterventionID,
							TechnicianID:   e.TechnicianID,
							Reason:         e.Reason,
							Time:           time.Now(),
						})
					}
				}
			}
		}
	}()
}
