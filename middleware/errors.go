package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/sessionAuth"
	"github.com/MrEthical07/sessionAuth/internal/rate"
	"github.com/MrEthical07/sessionAuth/jwt"
)

const (
	categoryUnauthorized = "unauthorized"
	categoryInternal     = "internal_error"

	messageAuthRequired       = "authentication required"
	messageBackendUnavailable = "authentication backend unavailable"
	messageInternal           = "internal server error"
)

// ErrorBody is the JSON document written for every rejected request.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Translate maps err to a status code and a body that is safe to show to
// clients. Token failures and store outages become 401; anything else is a
// 500 whose body never includes err's text.
func Translate(err error) (int, ErrorBody) {
	if kind := sessionAuth.KindOf(err); kind != jwt.FailureNone {
		return http.StatusUnauthorized, ErrorBody{Error: categoryUnauthorized, Message: kindMessage(kind)}
	}

	switch {
	case errors.Is(err, sessionAuth.ErrStoreUnavailable):
		return http.StatusUnauthorized, ErrorBody{Error: categoryUnauthorized, Message: messageBackendUnavailable}
	case errors.Is(err, sessionAuth.ErrRefreshReuse):
		return http.StatusUnauthorized, ErrorBody{Error: categoryUnauthorized, Message: "refresh token reuse detected"}
	case errors.Is(err, sessionAuth.ErrRefreshInvalid):
		return http.StatusUnauthorized, ErrorBody{Error: categoryUnauthorized, Message: "invalid refresh token"}
	case errors.Is(err, sessionAuth.ErrSessionNotFound):
		return http.StatusUnauthorized, ErrorBody{Error: categoryUnauthorized, Message: "session not found"}
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, ErrorBody{Error: categoryUnauthorized, Message: messageAuthRequired}
	case errors.Is(err, rate.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorBody{Error: "rate_limited", Message: "too many requests"}
	case errors.Is(err, sessionAuth.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorBody{Error: "invalid_request", Message: "malformed request"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: categoryInternal, Message: messageInternal}
	}
}

// WriteError writes the translated response for err.
func WriteError(w http.ResponseWriter, err error) {
	status, body := Translate(err)
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HandlerFunc is an http handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn so that any returned error goes through WriteError.
func Handle(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			WriteError(w, err)
		}
	})
}

func kindMessage(kind jwt.FailureKind) string {
	switch kind {
	case jwt.FailureExpired:
		return sessionAuth.ErrTokenExpired.Error()
	case jwt.FailureInvalidSignature:
		return sessionAuth.ErrTokenInvalidSignature.Error()
	case jwt.FailureUnsupported:
		return sessionAuth.ErrTokenUnsupported.Error()
	case jwt.FailureEmptyClaims:
		return sessionAuth.ErrTokenEmptyClaims.Error()
	default:
		return sessionAuth.ErrTokenMalformed.Error()
	}
}
