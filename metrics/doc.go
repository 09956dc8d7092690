// Package metrics wraps a Prometheus registry with get-or-create helpers
// for counters, gauges, histograms and timers, and schedules reporters that
// write metric snapshots to the log.
package metrics
