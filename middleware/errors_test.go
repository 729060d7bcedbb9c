package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/sessionAuth"
	"github.com/MrEthical07/sessionAuth/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateTokenKinds(t *testing.T) {
	authority, _ := newTestAuthority(t)

	cases := []struct {
		token   string
		message string
	}{
		{token: "", message: "token claims are empty"},
		{token: "abc.def", message: "token is malformed"},
		{token: "a.b.c.d.e", message: "token format is not supported"},
	}
	for _, tc := range cases {
		_, err := authority.Authenticate(tc.token)
		require.Error(t, err)

		status, body := Translate(err)
		assert.Equal(t, http.StatusUnauthorized, status, tc.token)
		assert.Equal(t, ErrorBody{Error: "unauthorized", Message: tc.message}, body, tc.token)
	}
}

func TestTranslateStoreAndFlowErrors(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: dial tcp: refused", sessionAuth.ErrStoreUnavailable), http.StatusUnauthorized, "authentication backend unavailable"},
		{sessionAuth.ErrRefreshReuse, http.StatusUnauthorized, "refresh token reuse detected"},
		{sessionAuth.ErrSessionNotFound, http.StatusUnauthorized, "session not found"},
		{fmt.Errorf("%w: empty device id", sessionAuth.ErrInvalidArgument), http.StatusBadRequest, "malformed request"},
		{fmt.Errorf("login: %w", rate.ErrRateLimited), http.StatusTooManyRequests, "too many requests"},
	}
	for _, tc := range cases {
		status, body := Translate(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.message, body.Message, tc.err.Error())
	}
}

func TestTranslateUnknownErrorDoesNotLeak(t *testing.T) {
	err := errors.New("secret=" + testSecret)

	rr := httptest.NewRecorder()
	WriteError(rr, err)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), testSecret))
	assert.Equal(t, ErrorBody{Error: "internal_error", Message: "internal server error"}, decodeBody(t, rr))
}

func TestHandleRoutesErrorsThroughTranslator(t *testing.T) {
	authority, clock := newTestAuthority(t)
	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	h := Handle(func(w http.ResponseWriter, r *http.Request) error {
		_, err := authority.Authenticate(r.URL.Query().Get("token"))
		if err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	rr := serve(h, "/internal/check?token="+token, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, `Bearer realm="api"`, rr.Header().Get("WWW-Authenticate"))
	assert.Equal(t, ErrorBody{Error: "unauthorized", Message: "token has expired"}, decodeBody(t, rr))
}
