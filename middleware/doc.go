// Package middleware turns a sessionAuth.Authority into request gates for
// net/http and gRPC, and owns the translation of authentication errors into
// client-facing responses.
//
// # Gates
//
//   - [Gate] authenticates `Authorization: Bearer` credentials on HTTP requests.
//   - [RequirePrincipal] rejects requests that reached it unauthenticated.
//   - [GRPCGate] applies the same rules to gRPC metadata.
//
// # Errors
//
// [Translate], [WriteError] and [Handle] map every error the authority can
// return to a status code and a `{"error": ..., "message": ...}` body. The
// gates use the same translator, so a rejection looks the same whether it
// came from the gate or from a handler.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the Authority).
//   - Access Redis.
//   - Write err.Error() for errors it does not recognize.
package middleware
