// Package otel publishes sessionAuth metrics through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and, for the
// verify latency histogram, a cumulative bucket gauge keyed by an "le"
// attribute plus a count gauge. A single callback reads
// [sessionAuth.Authority.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate authority state.
package otel
