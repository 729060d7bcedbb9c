package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	sessionAuth "github.com/MrEthical07/sessionAuth"
	"github.com/MrEthical07/sessionAuth/internal/rate"
	"github.com/MrEthical07/sessionAuth/middleware"
)

type handlers struct {
	authority *sessionAuth.Authority
	limiter   *rate.Limiter
	log       *zap.Logger
}

// throttle spends one unit of the client IP's budget for scope before
// calling next. A limiter outage lets the request through.
func (h *handlers) throttle(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h.limiter.Allow(r.Context(), scope, clientIP(r))
		switch {
		case err == nil:
		case errors.Is(err, rate.ErrRateLimited):
			middleware.WriteError(w, err)
			return
		default:
			h.log.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
}

// logoutRequest names the session to end by its refresh token, so only
// the holder of a live session can revoke it.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// login trusts the caller's user id. Credential checks belong to the
// identity service in front of authd.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	pair, err := h.authority.Login(r.Context(), req.UserID, req.DeviceID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	pair, err := h.authority.Refresh(r.Context(), req.RefreshToken, req.DeviceID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) error {
	var req logoutRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if err := h.authority.LogoutWithToken(r.Context(), req.RefreshToken); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) error {
	var req logoutRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	n, err := h.authority.LogoutAllWithToken(r.Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) error {
	p, _ := sessionAuth.PrincipalFromContext(r.Context())
	return writeJSON(w, http.StatusOK, map[string]any{
		"subject":     p.Subject,
		"authorities": p.Authorities,
		"expires_at":  p.ExpiresAt,
	})
}

func (h *handlers) devices(w http.ResponseWriter, r *http.Request) error {
	p, _ := sessionAuth.PrincipalFromContext(r.Context())
	devices, err := h.authority.Devices(r.Context(), p.Subject)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string][]string{"devices": devices})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) error {
	latency, err := h.authority.Registry().Ping(r.Context())
	if err != nil {
		return writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"redis_latency": latency.String(),
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", sessionAuth.ErrInvalidArgument)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s", sessionAuth.ErrInvalidArgument, strings.TrimSpace(err.Error()))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return nil
}
