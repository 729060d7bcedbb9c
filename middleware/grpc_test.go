package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/sessionAuth"
	"github.com/MrEthical07/sessionAuth/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func callUnary(t *testing.T, gate *GRPCGate, method, authorization string) (*sessionAuth.Principal, bool, error) {
	t.Helper()

	ctx := context.Background()
	if authorization != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", authorization))
	}

	var (
		called    bool
		principal *sessionAuth.Principal
	)
	handler := func(ctx context.Context, req any) (any, error) {
		called = true
		principal, _ = sessionAuth.PrincipalFromContext(ctx)
		return "ok", nil
	}

	_, err := gate.Unary()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
	return principal, called, err
}

func TestGRPCGateAttachesPrincipal(t *testing.T) {
	authority, _ := newTestAuthority(t)
	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)

	gate := NewGRPCGate(authority, "/grpc.health.v1.Health/")
	principal, called, err := callUnary(t, gate, "/orders.v1.Orders/List", "Bearer "+token)

	require.NoError(t, err)
	assert.True(t, called)
	require.NotNil(t, principal)
	assert.Equal(t, "alice", principal.Subject)
}

func TestGRPCGateBypassAndAnonymous(t *testing.T) {
	authority, _ := newTestAuthority(t)
	gate := NewGRPCGate(authority, "/grpc.health.v1.Health/")

	principal, called, err := callUnary(t, gate, "/grpc.health.v1.Health/Check", "Bearer garbage")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, principal)

	principal, called, err = callUnary(t, gate, "/orders.v1.Orders/List", "")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, principal)
}

func TestGRPCGateRejectsExpired(t *testing.T) {
	authority, clock := newTestAuthority(t)
	token, err := authority.IssueAccessToken("alice")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	gate := NewGRPCGate(authority)
	_, called, err := callUnary(t, gate, "/orders.v1.Orders/List", "Bearer "+token)

	require.Error(t, err)
	assert.False(t, called)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "token has expired", st.Message())
}

func TestGRPCGateRejectsRefreshToken(t *testing.T) {
	authority, clock := newTestAuthority(t)
	ctx := context.Background()

	pair, err := authority.Login(ctx, "alice", "phone1")
	require.NoError(t, err)
	require.NoError(t, authority.Logout(ctx, "alice", "phone1"))
	clock.Advance(24 * time.Hour)

	gate := NewGRPCGate(authority)
	principal, called, err := callUnary(t, gate, "/orders.v1.Orders/List", "Bearer "+pair.RefreshToken)

	require.Error(t, err)
	assert.False(t, called)
	assert.Nil(t, principal)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRequirePrincipalUnary(t *testing.T) {
	interceptor := RequirePrincipalUnary()
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/orders.v1.Orders/List"}

	_, err := interceptor(context.Background(), nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := sessionAuth.WithPrincipal(context.Background(), &sessionAuth.Principal{Subject: "alice"})
	out, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{sessionAuth.ErrTokenExpired, codes.Unauthenticated},
		{sessionAuth.ErrStoreUnavailable, codes.Unauthenticated},
		{rate.ErrRateLimited, codes.ResourceExhausted},
		{sessionAuth.ErrInvalidArgument, codes.InvalidArgument},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(statusFromError(tc.err)), tc.err.Error())
	}
}
