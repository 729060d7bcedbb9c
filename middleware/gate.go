package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionAuth"
	"go.uber.org/zap"
)

var errUnauthenticated = errors.New("authentication required")

// Middleware is one link of a handler chain.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so that mws run in the order given.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Gate authenticates bearer credentials. Requests under a bypass prefix and
// requests without a credential pass through with no principal. A credential
// that fails verification ends the request with a 401 body written by
// WriteError; a valid one attaches a *sessionAuth.Principal to the context.
//
// Bypass prefixes come from the authority's GateConfig.
func Gate(authority *sessionAuth.Authority) Middleware {
	prefixes := authority.GateConfig().BypassPrefixes
	log := authority.Logger().Named("gate")
	metrics := authority.Metrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassed(r.URL.Path, prefixes) {
				metrics.Inc(sessionAuth.MetricGateBypass)
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				metrics.Inc(sessionAuth.MetricGateAnonymous)
				next.ServeHTTP(w, r)
				return
			}

			principal, err := authority.Authenticate(token)
			if err != nil {
				metrics.Inc(sessionAuth.MetricGateReject)
				log.Debug("bearer credential rejected",
					zap.String("path", r.URL.Path),
					zap.Stringer("kind", sessionAuth.KindOf(err)),
				)
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(sessionAuth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePrincipal rejects requests that reach it without a principal. Put it
// after Gate on routes that must be authenticated.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sessionAuth.PrincipalFromContext(r.Context()); !ok {
			WriteError(w, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bypassed(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
