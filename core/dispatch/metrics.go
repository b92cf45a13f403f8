package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	roundsTotal     *prometheus.CounterVec
	offersCreated   prometheus.Counter
	notifySuccess   prometheus.Counter
	notifyFailure   prometheus.Counter
	claimsTotal     *prometheus.CounterVec
	attemptTimeouts prometheus.Counter
	exclusionsTotal prometheus.Counter
	roundCandidates prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Histogram) {
	rounds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_rounds_total",
			Help: "Number of dispatch rounds by outcome",
		},
		[]string{"outcome"},
	)
	offers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_offers_created_total",
			Help: "Number of dispatch attempts created",
		},
	)
	nok := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offer_notify_success_total",
			Help: "Number of offer notifications delivered",
		},
	)
	nfail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offer_notify_failure_total",
			Help: "Number of offer notifications that failed to deliver",
		},
	)
	claims := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_claims_total",
			Help: "Accept/go calls by result (won, lost, replay)",
		},
		[]string{"result"},
	)
	timeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_attempt_timeouts_total",
			Help: "Number of attempts expired by the timeout sweeper",
		},
	)
	excl := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_exclusions_total",
			Help: "Number of permanent exclusion records written",
		},
	)
	cand := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_round_candidates",
			Help:    "Eligible candidates per dispatch round",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)
	return rounds, offers, nok, nfail, claims, timeouts, excl, cand
}

func init() {
	roundsTotal, offersCreated, notifySuccess, notifyFailure, claimsTotal, attemptTimeouts, exclusionsTotal, roundCandidates = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(roundsTotal, offersCreated, notifySuccess, notifyFailure, claimsTotal, attemptTimeouts, exclusionsTotal, roundCandidates)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	roundsTotal, offersCreated, notifySuccess, notifyFailure, claimsTotal, attemptTimeouts, exclusionsTotal, roundCandidates = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
