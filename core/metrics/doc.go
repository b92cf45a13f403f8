// Package metrics defines the sink interfaces the dispatch engine records
// through. The mandatory MetricsSink receives offer fan-out results; the
// optional Claim/Timeout/Exclusion recorders are picked up by type assertion
// so a sink only implements what it can export. Concrete Prometheus and
// InfluxDB sinks live under infra/metrics.
package metrics
