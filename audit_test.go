package sessionAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionAuth/jwt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func auditEnabled(c *Config) {
	c.Audit.Enabled = true
	c.Audit.BufferSize = 32
	c.Audit.DropIfFull = false
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditLoginRefreshReuseLogout(t *testing.T) {
	sink := NewChannelSink(32)
	ta := newTestAuthority(t, auditEnabled, sink)
	ctx := context.Background()

	pair, err := ta.Login(ctx, "42", "phone1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != auditEventLoginSuccess || !ev.Success || ev.UserID != "42" || ev.DeviceID != "phone1" || ev.SessionID == "" {
		t.Fatalf("unexpected login event: %+v", ev)
	}
	if !ev.Timestamp.Equal(ta.clock.Now()) {
		t.Fatalf("expected event time from the authority clock, got %v", ev.Timestamp)
	}

	if _, err := ta.Refresh(ctx, pair.RefreshToken, "phone1"); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventRefreshSuccess {
		t.Fatalf("expected refresh success, got %+v", ev)
	}

	if _, err := ta.Refresh(ctx, pair.RefreshToken, "phone1"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse, got %v", err)
	}
	ev = nextEvent(t, sink)
	if ev.EventType != auditEventRefreshReuseDetected || ev.Success || ev.Error != string(auditErrRefreshReuse) {
		t.Fatalf("unexpected reuse event: %+v", ev)
	}

	if _, err := ta.LogoutAll(ctx, "42"); err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != auditEventLogoutAll || !ev.Success {
		t.Fatalf("unexpected logout event: %+v", ev)
	}
}

func TestAuditEventsCarryNoTokens(t *testing.T) {
	var buf syncBuffer
	ta := newTestAuthority(t, auditEnabled, NewJSONWriterSink(&buf))
	ctx := context.Background()

	pair, err := ta.Login(ctx, "42", "phone1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := ta.Refresh(ctx, pair.RefreshToken, "phone1"); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	ta.Close()

	out := buf.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected 2 JSON lines, got %q", out)
	}
	for _, needle := range []string{pair.AccessToken, pair.RefreshToken, testSecret} {
		if strings.Contains(out, needle) {
			t.Fatal("audit output must not contain tokens or key material")
		}
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(4)
	ta := newTestAuthority(t, nil, sink)

	if _, err := ta.Login(context.Background(), "42", "phone1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	ta.Close()

	select {
	case ev := <-sink.Events():
		t.Fatalf("expected no events, got %+v", ev)
	default:
	}
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventLoginSuccess,
		UserID:    "42",
		DeviceID:  "phone1",
		SessionID: "sess-abc",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventRefreshReuseDetected,
		UserID:    "42",
		Error:     string(auditErrRefreshReuse),
	})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != auditEventLoginSuccess || entries[0].LoggerName != "audit" {
		t.Fatalf("unexpected success entry: %+v", entries[0])
	}
	if entries[0].ContextMap()["session_id"] != "sess-abc" {
		t.Fatalf("expected session_id field, got %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "refresh_reuse" {
		t.Fatalf("unexpected failure entry: %+v", entries[1])
	}
}

func TestAuditErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrRefreshReuse, auditErrRefreshReuse},
		{fmt.Errorf("%w: %w", ErrRefreshInvalid, &AuthError{Kind: jwt.FailureExpired}), auditErrExpiredToken},
		{ErrRefreshInvalid, auditErrInvalidToken},
		{fmt.Errorf("%w: x", ErrSessionNotFound), auditErrSessionNotFound},
		{fmt.Errorf("%w: x", ErrInvalidArgument), auditErrInvalidArgument},
		{fmt.Errorf("%w: x", ErrStoreUnavailable), auditErrStoreUnavailable},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
