package internaldefs

import (
	"github.com/MrEthical07/sessionAuth"
)

// Namespace prefixes every exported metric name.
const Namespace = "sessionauth"

// CounterDef names one sessionAuth counter.
type CounterDef struct {
	ID   sessionAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one sessionAuth histogram.
type HistogramDef struct {
	ID   sessionAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter exporters publish, in MetricID order.
var CounterDefs = []CounterDef{
	{ID: sessionAuth.MetricAccessIssued, Name: "sessionauth_access_issued_total", Help: "Access tokens issued."},
	{ID: sessionAuth.MetricRefreshIssued, Name: "sessionauth_refresh_issued_total", Help: "Refresh tokens issued."},
	{ID: sessionAuth.MetricVerifySuccess, Name: "sessionauth_verify_success_total", Help: "Access tokens that verified."},
	{ID: sessionAuth.MetricVerifyInvalidSignature, Name: "sessionauth_verify_invalid_signature_total", Help: "Tokens rejected for a signature mismatch."},
	{ID: sessionAuth.MetricVerifyMalformed, Name: "sessionauth_verify_malformed_total", Help: "Tokens rejected as malformed."},
	{ID: sessionAuth.MetricVerifyExpired, Name: "sessionauth_verify_expired_total", Help: "Tokens rejected as expired."},
	{ID: sessionAuth.MetricVerifyUnsupported, Name: "sessionauth_verify_unsupported_total", Help: "Tokens rejected for an unsupported format or algorithm."},
	{ID: sessionAuth.MetricVerifyEmptyClaims, Name: "sessionauth_verify_empty_claims_total", Help: "Tokens rejected for empty required claims."},
	{ID: sessionAuth.MetricStoreUnavailable, Name: "sessionauth_store_unavailable_total", Help: "Refresh registry calls that could not reach Redis."},
	{ID: sessionAuth.MetricLoginSuccess, Name: "sessionauth_login_success_total", Help: "Sessions opened by Login."},
	{ID: sessionAuth.MetricLoginFailure, Name: "sessionauth_login_failure_total", Help: "Login calls that failed."},
	{ID: sessionAuth.MetricRefreshSuccess, Name: "sessionauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: sessionAuth.MetricRefreshFailure, Name: "sessionauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: sessionAuth.MetricRefreshReuseDetected, Name: "sessionauth_refresh_reuse_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: sessionAuth.MetricLogout, Name: "sessionauth_logout_total", Help: "Single-device logouts."},
	{ID: sessionAuth.MetricLogoutAll, Name: "sessionauth_logout_all_total", Help: "Logout-all operations."},
	{ID: sessionAuth.MetricGateBypass, Name: "sessionauth_gate_bypass_total", Help: "Requests that matched a bypass prefix."},
	{ID: sessionAuth.MetricGateAnonymous, Name: "sessionauth_gate_anonymous_total", Help: "Requests that carried no bearer credential."},
	{ID: sessionAuth.MetricGateReject, Name: "sessionauth_gate_reject_total", Help: "Requests rejected by the gate."},
}

// HistogramDefs lists every histogram exporters publish.
var HistogramDefs = []HistogramDef{
	{ID: sessionAuth.MetricVerifyLatency, Name: "sessionauth_verify_latency_seconds", Help: "Access token verification latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "sessionauth_audit_dropped_total"

// UpperBounds are the finite bucket bounds in seconds. The eighth bucket is
// +Inf.
var UpperBounds = []float64{
	0.00001,
	0.000025,
	0.00005,
	0.0001,
	0.00025,
	0.0005,
	0.001,
}

// BucketLabels are the "le" label values matching UpperBounds plus +Inf.
var BucketLabels = []string{
	"1e-05",
	"2.5e-05",
	"5e-05",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"+Inf",
}

// BucketCount is the number of raw buckets in a snapshot histogram.
const BucketCount = 8

// NormalizeBuckets copies raw into a fixed-size array, truncating or
// zero-padding as needed.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}

// SumEstimate approximates the histogram sum using each bucket's upper bound
// (the last bucket uses the largest finite bound).
func SumEstimate(raw [BucketCount]uint64) float64 {
	var sum float64
	for i, v := range raw {
		bound := UpperBounds[len(UpperBounds)-1]
		if i < len(UpperBounds) {
			bound = UpperBounds[i]
		}
		sum += float64(v) * bound
	}
	return sum
}
