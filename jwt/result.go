package jwt

import "errors"

// FailureKind classifies why a token failed verification.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureInvalidSignature
	FailureMalformed
	FailureExpired
	FailureUnsupported
	FailureEmptyClaims
)

// String returns a stable snake_case label, used for logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureInvalidSignature:
		return "invalid_signature"
	case FailureMalformed:
		return "malformed"
	case FailureExpired:
		return "expired"
	case FailureUnsupported:
		return "unsupported"
	case FailureEmptyClaims:
		return "empty_claims"
	default:
		return "unknown"
	}
}

// Result is the outcome of [Manager.Verify]: either Claims (Failure ==
// FailureNone) or a classified failure with the underlying parser error.
type Result struct {
	Claims  *Claims
	Failure FailureKind
	Err     error
}

// OK reports whether verification succeeded.
func (r Result) OK() bool {
	return r.Failure == FailureNone && r.Claims != nil
}

// Error converts a failed Result into a *TokenError. It returns nil for a
// successful Result.
func (r Result) Error() error {
	if r.OK() {
		return nil
	}
	return &TokenError{Kind: r.Failure, Err: r.Err}
}

// TokenError carries a FailureKind through ordinary error returns.
type TokenError struct {
	Kind FailureKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token " + e.Kind.String()
	}
	return "token " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// KindOf extracts the FailureKind from err, or FailureNone when err carries
// no *TokenError.
func KindOf(err error) FailureKind {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Kind
	}
	return FailureNone
}

func failed(kind FailureKind, err error) Result {
	return Result{Failure: kind, Err: err}
}
