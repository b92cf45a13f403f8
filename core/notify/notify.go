// Package notify defines the best-effort technician notification boundary.
// Delivery failures never roll back a committed state transition; callers
// log and move on.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OfferNotice carries everything a technician needs to act on an offer.
type OfferNotice struct {
	InterventionID string        `json:"intervention_id"`
	TechnicianID   string        `json:"technician_id"`
	Category       string        `json:"category"`
	Score          float64       `json:"score"`
	DistanceKm     float64       `json:"distance_km"`
	ETA            time.Duration `json:"eta"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// Notifier delivers offers and cancellations to technicians.
type Notifier interface {
	NotifyOffer(ctx context.Context, n OfferNotice) error
	NotifyCancelled(ctx context.Context, interventionID, technicianID, reason string) error
}

// NopNotifier discards every notice.
type NopNotifier struct{}

func (NopNotifier) NotifyOffer(context.Context, OfferNotice) error                { return nil }
func (NopNotifier) NotifyCancelled(context.Context, string, string, string) error { return nil }

// MockNotifier records notices for tests and can be configured to fail for
// specific technicians.
type MockNotifier struct {
	mu      sync.Mutex
	Offers  []OfferNotice
	Cancels []string // "interventionID/technicianID"
	FailIDs map[string]bool
}

// NewMockNotifier returns an empty recorder.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{FailIDs: make(map[string]bool)}
}

// NotifyOffer records the notice or fails if the technician is marked failing.
func (m *MockNotifier) NotifyOffer(_ context.Context, n OfferNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[n.TechnicianID] {
		return fmt.Errorf("notify: delivery to %s failed", n.TechnicianID)
	}
	m.Offers = append(m.Offers, n)
	return nil
}

// NotifyCancelled records the cancellation notice.
func (m *MockNotifier) NotifyCancelled(_ context.Context, interventionID, technicianID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[technicianID] {
		return fmt.Errorf("notify: delivery to %s failed", technicianID)
	}
	m.Cancels = append(m.Cancels, interventionID+"/"+technicianID)
	return nil
}

// OfferedTo reports whether an offer was recorded for the technician.
func (m *MockNotifier) OfferedTo(technicianID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Offers {
		if o.TechnicianID == technicianID {
			return true
		}
	}
	return false
}
