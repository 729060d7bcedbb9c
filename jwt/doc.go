// Package jwt issues and verifies the HMAC-signed access and refresh tokens used on the
// request hot path.
//
// Verification never performs I/O and reports failures as a typed [Result] instead of a
// bare error, so callers branch on [FailureKind] rather than inspecting error strings.
// Exactly one signing algorithm is configured per [Manager]; tokens signed with any other
// algorithm are reported as [FailureUnsupported].
package jwt
