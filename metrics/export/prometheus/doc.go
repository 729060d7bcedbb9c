// Package prometheus exposes sessionAuth metrics as a client_golang
// [prometheus.Collector].
//
// [NewCollector] emits every counter as sessionauth_*_total and the verify
// latency histogram as sessionauth_verify_latency_seconds. [Handler] wraps the
// collector in a private registry for mounting on /metrics.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry.
//   - Mutate authority state.
package prometheus
