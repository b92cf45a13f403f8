package metrics

import "time"

// OfferResult represents one offer of an intervention to a technician,
// recorded for observability.
type OfferResult struct {
	InterventionID string
	RoundID        string
	TechnicianID   string
	Order          int
	Score          float64
	DistanceKm     float64
	Delivered      bool
	Time           time.Time
}

// MetricsSink records offer results. Additional event kinds are exposed as
// optional recorder interfaces so sinks only implement what they support.
type MetricsSink interface {
	RecordOfferResult(results []OfferResult) error
}

// ClaimResult captures the outcome of an accept or go call.
type ClaimResult struct {
	InterventionID string
	TechnicianID   string
	Won            bool
	ResponseTime   time.Duration
	Time           time.Time
}

// ClaimRecorder records claim outcomes.
type ClaimRecorder interface {
	RecordClaim(res ClaimResult) error
}

// TimeoutResult captures an expired-offer sweep.
type TimeoutResult struct {
	InterventionID string
	Expired        int
	Time           time.Time
}

// TimeoutRecorder records timeout sweeps.
type TimeoutRecorder interface {
	RecordTimeout(res TimeoutResult) error
}

// ExclusionResult captures a permanent exclusion being written.
type ExclusionResult struct {
	InterventionID string
	TechnicianID   string
	Reason         string
	Time           time.Time
}

// ExclusionRecorder records exclusion ledger writes.
type ExclusionRecorder interface {
	RecordExclusion(res ExclusionResult) error
}

// NopSink implements every recorder with no-ops.
type NopSink struct{}

func (NopSink) RecordOfferResult([]OfferResult) error { return nil }
func (NopSink) RecordClaim(ClaimResult) error         { return nil }
func (NopSink) RecordTimeout(TimeoutResult) error     { return nil }
func (NopSink) RecordExclusion(ExclusionResult) error { return nil }
