// Package sessionAuth is a token and session authority: it issues short-lived
// HMAC-signed access tokens, keeps a revocable per-device refresh registry in
// Redis, and authenticates bearer credentials for the HTTP and gRPC gates in
// the middleware package.
//
// Authority methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessionAuth is the public surface. It exposes [Authority], [Builder],
// [Config], [Principal] and the error taxonomy. Token encoding lives in the
// jwt package, Redis access in the refresh package, and request plumbing in
// middleware.
//
// # What this package must NOT do
//
//   - Hash or store passwords, or decide whether credentials are correct.
//   - Make authorization decisions beyond "authenticated or not".
//   - Keep signing key material in package-level state.
//
// # Performance contract
//
// Authenticate is the hot path. It never touches Redis. Login, Refresh and
// Logout are one or two Redis round-trips each.
package sessionAuth
