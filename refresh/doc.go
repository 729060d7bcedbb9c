// Package refresh keeps the Redis-backed registry of live refresh sessions, one per
// (user, device), plus the per-user device index used for bulk revocation.
//
// # Key layout
//
//	rt:{userId}:{deviceId}  string  session identifier (jti); TTL = remaining validity, min 1s
//	rtidx:{userId}          set     device identifiers; no TTL
//
// # Architecture boundaries
//
// This package owns the store round-trips only. It does NOT parse tokens, decide whether a
// refresh is legitimate, or emit audit events. The Authority does.
//
// # What this package must NOT do
//
//   - Import sessionAuth or jwt (no upward imports).
//   - Retry failed store calls; failures surface as [ErrStoreUnavailable].
package refresh
