package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/nroult/fieldops/core/metrics"
	"github.com/nroult/fieldops/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordOfferResult writes one point per offer delivery attempt.
func (s *InfluxSink) RecordOfferResult(res []coremetrics.OfferResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range res {
		p := write.NewPointWithMeasurement("offer_event").
			AddTag("intervention_id", r.InterventionID).
			AddTag("technician_id", r.TechnicianID).
			AddTag("round_id", r.RoundID).
			AddTag("delivered", strconv.FormatBool(r.Delivered)).
			AddTag("component", "dispatch_engine").
			AddField("rank", r.Order).
			AddField("score", round3(r.Score)).
			AddField("distance_km", round3(r.DistanceKm)).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordClaim writes an acceptance claim outcome.
func (s *InfluxSink) RecordClaim(res coremetrics.ClaimResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("claim_event").
		AddTag("intervention_id", res.InterventionID).
		AddTag("technician_id", res.TechnicianID).
		AddTag("won", strconv.FormatBool(res.Won)).
		AddTag("component", "dispatch_engine").
		AddField("response_time_s", round3(res.ResponseTime.Seconds())).
		SetTime(res.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTimeout writes a timeout sweep result.
func (s *InfluxSink) RecordTimeout(res coremetrics.TimeoutResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("offer_timeout_event").
		AddTag("intervention_id", res.InterventionID).
		AddTag("component", "dispatch_engine").
		AddField("expired", res.Expired).
		SetTime(res.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordExclusion writes a permanent exclusion.
func (s *InfluxSink) RecordExclusion(res coremetrics.ExclusionResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("exclusion_event").
		AddTag("intervention_id", res.InterventionID).
		AddTag("technician_id", res.TechnicianID).
		AddTag("reason", res.Reason).
		AddTag("component", "dispatch_engine").
		AddField("count", 1).
		SetTime(res.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
