package metrics

import coremetrics "github.com/nroult/fieldops/core/metrics"

// MultiSink fans dispatch events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOfferResult forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordOfferResult(res []coremetrics.OfferResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordOfferResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordClaim forwards claim outcomes to sinks that support them.
func (m *MultiSink) RecordClaim(res coremetrics.ClaimResult) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ClaimRecorder); ok {
			if err := rec.RecordClaim(res); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTimeout forwards timeout sweeps to sinks that support them.
func (m *MultiSink) RecordTimeout(res coremetrics.TimeoutResult) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.TimeoutRecorder); ok {
			if err := rec.RecordTimeout(res); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordExclusion forwards exclusions to sinks that support them.
func (m *MultiSink) RecordExclusion(res coremetrics.ExclusionResult) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ExclusionRecorder); ok {
			if err := rec.RecordExclusion(res); err != nil {
				return err
			}
		}
	}
	return nil
}
