package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/nroult/fieldops/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	offers   *prometheus.CounterVec
	claims   *prometheus.CounterVec
	response prometheus.Histogram
	timeouts prometheus.Counter
	excluded *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately via StartPromServer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_events_total",
		Help: "Total number of offer delivery events",
	}, []string{"delivered"})
	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_events_total",
		Help: "Total number of acceptance claims",
	}, []string{"won"})
	response := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "claim_response_seconds",
		Help:    "Time between intervention creation and winning acceptance",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offer_timeout_events_total",
		Help: "Total number of offers expired by the timeout sweep",
	})
	excluded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exclusion_events_total",
		Help: "Total number of permanent technician exclusions",
	}, []string{"reason"})

	if err := reg.Register(offers); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			offers = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(claims); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			claims = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(response); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			response = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(timeouts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			timeouts = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(excluded); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			excluded = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{offers: offers, claims: claims, response: response, timeouts: timeouts, excluded: excluded}, nil
}

// RecordOfferResult increments the offer counter for each delivery attempt.
func (s *PromSink) RecordOfferResult(res []coremetrics.OfferResult) error {
	for _, r := range res {
		s.offers.WithLabelValues(strconv.FormatBool(r.Delivered)).Inc()
	}
	return nil
}

// RecordClaim increments the claim counter and observes the response time of
// winning claims.
func (s *PromSink) RecordClaim(res coremetrics.ClaimResult) error {
	s.claims.WithLabelValues(strconv.FormatBool(res.Won)).Inc()
	if res.Won {
		s.response.Observe(res.ResponseTime.Seconds())
	}
	return nil
}

// RecordTimeout adds the number of expired offers.
func (s *PromSink) RecordTimeout(res coremetrics.TimeoutResult) error {
	s.timeouts.Add(float64(res.Expired))
	return nil
}

// RecordExclusion increments the exclusion counter.
func (s *PromSink) RecordExclusion(res coremetrics.ExclusionResult) error {
	s.excluded.WithLabelValues(res.Reason).Inc()
	return nil
}
