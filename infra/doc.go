// Package infra groups the technical adapters behind the core interfaces:
// the sqlite stores, the MQTT offer notifier, the technician directory
// file loader and the metric sinks. Nothing in here is imported by core.
package infra
