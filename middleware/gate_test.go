package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionAuth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestAuthority(t *testing.T) (*sessionAuth.Authority, *testClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	cfg := sessionAuth.DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.JWT.AccessTTL = time.Minute
	cfg.Metrics.Enabled = true

	authority, err := sessionAuth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(authority.Close)

	return authority, clock
}

type recorder struct {
	called    bool
	principal *sessionAuth.Principal
}

func (rec *recorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.called = true
		rec.principal, _ = sessionAuth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestGatePublicPathWithoutHeader(t *testing.T) {
	authority, _ := newTestAuthority(t)
	rec := &recorder{}

	rr := serve(Gate(authority)(rec.handler()), "/api/public/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, rec.called)
	assert.Nil(t, rec.principal)
}

func TestGateBypassIgnoresCredential(t *testing.T) {
	authority, _ := newTestAuthority(t)
	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)

	for _, auth := range []string{"Bearer " + token, "Bearer not-a-token", "Basic Zm9vOmJhcg=="} {
		for _, path := range []string{"/api/public/health", "/api/auth/login", "/docs/index.html", "/swagger-ui/", "/v3/api-docs"} {
			rec := &recorder{}
			rr := serve(Gate(authority)(rec.handler()), path, auth)

			assert.Equal(t, http.StatusOK, rr.Code, path)
			assert.True(t, rec.called, path)
			assert.Nil(t, rec.principal, path)
		}
	}

	snap := authority.MetricsSnapshot()
	assert.Equal(t, uint64(15), snap.Counters[sessionAuth.MetricGateBypass])
	assert.Zero(t, snap.Counters[sessionAuth.MetricVerifySuccess])
}

func TestGateNoCredentialPassesThrough(t *testing.T) {
	authority, _ := newTestAuthority(t)

	for _, auth := range []string{"", "Basic Zm9vOmJhcg==", "bearer lowercase", "Bearer ", "Token abc"} {
		rec := &recorder{}
		rr := serve(Gate(authority)(rec.handler()), "/api/orders", auth)

		assert.Equal(t, http.StatusOK, rr.Code, auth)
		assert.True(t, rec.called, auth)
		assert.Nil(t, rec.principal, auth)
	}
}

func TestGateAttachesPrincipal(t *testing.T) {
	authority, clock := newTestAuthority(t)
	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)

	rec := &recorder{}
	rr := serve(Gate(authority)(rec.handler()), "/api/orders", "Bearer "+token)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, rec.principal)
	assert.Equal(t, "alice", rec.principal.Subject)
	assert.Equal(t, []string{"ROLE_USER"}, rec.principal.Authorities)
	assert.True(t, rec.principal.HasAuthority("ROLE_USER"))
	assert.Equal(t, clock.Now().Add(time.Minute).Unix(), rec.principal.ExpiresAt.Unix())
}

func TestGateExpiredTokenRejected(t *testing.T) {
	authority, clock := newTestAuthority(t)
	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)

	clock.Advance(time.Minute)

	rec := &recorder{}
	rr := serve(Gate(authority)(rec.handler()), "/api/orders", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, rec.called)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, ErrorBody{Error: "unauthorized", Message: "token has expired"}, decodeBody(t, rr))
	assert.Equal(t, uint64(1), authority.MetricsSnapshot().Counters[sessionAuth.MetricGateReject])
}

func TestGateRejectsEveryFailureKind(t *testing.T) {
	authority, _ := newTestAuthority(t)

	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)
	tampered := token[:len(token)-3] + "xyz"

	cases := map[string]string{
		"malformed":   "abc.def",
		"unsupported": "a.b.c.d.e",
		"signature":   tampered,
	}
	for name, token := range cases {
		rec := &recorder{}
		rr := serve(Gate(authority)(rec.handler()), "/api/orders", "Bearer "+token)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, name)
		assert.False(t, rec.called, name)
		assert.Equal(t, "unauthorized", decodeBody(t, rr).Error, name)
	}
}

func TestGateRejectsRefreshTokenAsBearer(t *testing.T) {
	authority, clock := newTestAuthority(t)
	ctx := context.Background()

	pair, err := authority.Login(ctx, "alice", "phone1")
	require.NoError(t, err)

	rec := &recorder{}
	rr := serve(Gate(authority)(rec.handler()), "/api/orders", "Bearer "+pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, rec.called)
	assert.Equal(t, ErrorBody{Error: "unauthorized", Message: "token format is not supported"}, decodeBody(t, rr))

	require.NoError(t, authority.Logout(ctx, "alice", "phone1"))
	clock.Advance(24 * time.Hour)

	rec = &recorder{}
	rr = serve(Gate(authority)(rec.handler()), "/api/orders", "Bearer "+pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, rec.called)
	assert.Nil(t, rec.principal)
}

func TestRequirePrincipal(t *testing.T) {
	authority, _ := newTestAuthority(t)
	rec := &recorder{}
	h := Chain(rec.handler(), Gate(authority), RequirePrincipal)

	rr := serve(h, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, rec.called)
	assert.Equal(t, ErrorBody{Error: "unauthorized", Message: "authentication required"}, decodeBody(t, rr))

	token, err := authority.IssueAccessToken("bob")
	require.NoError(t, err)
	rr = serve(h, "/api/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, rec.principal)
	assert.Equal(t, "bob", rec.principal.Subject)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("a"), mark("b"))

	serve(h, "/", "")
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, v := range []string{"", "Bearer", "Bearer ", "bearer abc", "Basic abc"} {
		_, ok := bearerToken(v)
		assert.False(t, ok, v)
	}
}
