package sessionAuth

import (
	"errors"

	"github.com/MrEthical07/sessionAuth/jwt"
	"github.com/MrEthical07/sessionAuth/refresh"
)

var (
	// ErrTokenInvalidSignature means the token was not signed with the process key.
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	// ErrTokenMalformed means the token could not be parsed.
	ErrTokenMalformed = errors.New("token is malformed")
	// ErrTokenExpired means now >= exp.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenUnsupported means the token uses an unrecognized structure or algorithm.
	ErrTokenUnsupported = errors.New("token format is not supported")
	// ErrTokenEmptyClaims means the token string or a required claim is empty.
	ErrTokenEmptyClaims = errors.New("token claims are empty")

	// ErrStoreUnavailable means the refresh registry could not be reached.
	ErrStoreUnavailable = refresh.ErrStoreUnavailable
	// ErrSessionNotFound means no live refresh session exists for the device.
	ErrSessionNotFound = refresh.ErrSessionNotFound
	// ErrInvalidArgument is returned for empty user or device identifiers.
	ErrInvalidArgument = refresh.ErrInvalidArgument

	// ErrRefreshInvalid means the presented refresh token failed verification.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse means a verified refresh token no longer matches the
	// registry. The device session is revoked when this is returned.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrAuthorityNotReady is returned by methods called on a nil or unbuilt Authority.
	ErrAuthorityNotReady = errors.New("authority not initialized")
)

// AuthError is returned by token-verifying Authority methods. It matches both
// the kind sentinel (ErrTokenExpired, ...) and, through Unwrap, the parser
// error, so errors.Is and jwt.KindOf both work on it.
type AuthError struct {
	Kind jwt.FailureKind
	Err  error
}

func (e *AuthError) Error() string {
	return kindSentinel(e.Kind).Error()
}

// Is lets errors.Is match the sentinel for Kind.
func (e *AuthError) Is(target error) bool {
	return target == kindSentinel(e.Kind)
}

func (e *AuthError) Unwrap() error {
	return &jwt.TokenError{Kind: e.Kind, Err: e.Err}
}

// KindOf reports the token failure kind carried by err, or jwt.FailureNone.
// Bare ErrToken* sentinels are recognized too.
func KindOf(err error) jwt.FailureKind {
	if kind := jwt.KindOf(err); kind != jwt.FailureNone {
		return kind
	}
	for _, kind := range []jwt.FailureKind{
		jwt.FailureInvalidSignature,
		jwt.FailureMalformed,
		jwt.FailureExpired,
		jwt.FailureUnsupported,
		jwt.FailureEmptyClaims,
	} {
		if errors.Is(err, kindSentinel(kind)) {
			return kind
		}
	}
	return jwt.FailureNone
}

// IsTokenError reports whether err is a token verification failure.
func IsTokenError(err error) bool {
	return KindOf(err) != jwt.FailureNone
}

func kindSentinel(kind jwt.FailureKind) error {
	switch kind {
	case jwt.FailureInvalidSignature:
		return ErrTokenInvalidSignature
	case jwt.FailureMalformed:
		return ErrTokenMalformed
	case jwt.FailureExpired:
		return ErrTokenExpired
	case jwt.FailureUnsupported:
		return ErrTokenUnsupported
	case jwt.FailureEmptyClaims:
		return ErrTokenEmptyClaims
	default:
		return ErrTokenMalformed
	}
}

func authError(res jwt.Result) error {
	if res.OK() {
		return nil
	}
	return &AuthError{Kind: res.Failure, Err: res.Err}
}
