package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionAuth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCGate applies the gate rules to gRPC calls. Method names are matched
// against bypass prefixes the same way HTTP paths are, so "/health." skips
// every method of a health service.
type GRPCGate struct {
	authority *sessionAuth.Authority
	bypass    []string
	log       *zap.Logger
}

// NewGRPCGate returns a gate for authority. bypassMethodPrefixes are full
// method prefixes such as "/grpc.health.v1.Health/".
func NewGRPCGate(authority *sessionAuth.Authority, bypassMethodPrefixes ...string) *GRPCGate {
	return &GRPCGate{
		authority: authority,
		bypass:    append([]string(nil), bypassMethodPrefixes...),
		log:       authority.Logger().Named("grpc_gate"),
	}
}

// Unary returns the unary server interceptor.
func (g *GRPCGate) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (g *GRPCGate) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &principalStream{ServerStream: ss, ctx: ctx})
	}
}

func (g *GRPCGate) authenticate(ctx context.Context, method string) (context.Context, error) {
	metrics := g.authority.Metrics()
	if bypassed(method, g.bypass) {
		metrics.Inc(sessionAuth.MetricGateBypass)
		return ctx, nil
	}

	token, ok := bearerFromMetadata(ctx)
	if !ok {
		metrics.Inc(sessionAuth.MetricGateAnonymous)
		return ctx, nil
	}

	principal, err := g.authority.Authenticate(token)
	if err != nil {
		metrics.Inc(sessionAuth.MetricGateReject)
		g.log.Debug("bearer credential rejected",
			zap.String("method", method),
			zap.Stringer("kind", sessionAuth.KindOf(err)),
		)
		return nil, statusFromError(err)
	}
	return sessionAuth.WithPrincipal(ctx, principal), nil
}

// RequirePrincipalUnary rejects unary calls that carry no principal.
func RequirePrincipalUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := sessionAuth.PrincipalFromContext(ctx); !ok {
			return nil, status.Error(codes.Unauthenticated, messageAuthRequired)
		}
		return handler(ctx, req)
	}
}

func statusFromError(err error) error {
	code, body := Translate(err)
	switch {
	case code == http.StatusUnauthorized:
		return status.Error(codes.Unauthenticated, body.Message)
	case code == http.StatusTooManyRequests:
		return status.Error(codes.ResourceExhausted, body.Message)
	case errors.Is(err, sessionAuth.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, body.Message)
	default:
		return status.Error(codes.Internal, body.Message)
	}
}

// gRPC metadata keys are lower-case; the scheme is matched exactly like the
// HTTP header.
func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, value := range md.Get("authorization") {
		if token, ok := bearerToken(strings.TrimSpace(value)); ok {
			return token, true
		}
	}
	return "", false
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context {
	return s.ctx
}
