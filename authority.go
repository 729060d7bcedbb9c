package sessionAuth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/sessionAuth/internal/audit"
	"github.com/MrEthical07/sessionAuth/jwt"
	"github.com/MrEthical07/sessionAuth/refresh"
	"go.uber.org/zap"
)

// Authority ties the token codec to the refresh registry. It issues token
// pairs per (user, device), rotates them on refresh, revokes them on logout
// and authenticates access tokens for the gate.
//
// Authority is safe for concurrent use. Build one with [New].
type Authority struct {
	config   Config
	tokens   *jwt.Manager
	registry *refresh.Registry
	audit    *audit.Dispatcher[AuditEvent]
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

// Close flushes pending audit events.
func (a *Authority) Close() {
	if a == nil {
		return
	}
	a.audit.Close()
}

// AuditDropped returns how many audit events were discarded on a full queue.
func (a *Authority) AuditDropped() uint64 {
	if a == nil {
		return 0
	}
	return a.audit.Dropped()
}

// MetricsSnapshot copies the in-process counters.
func (a *Authority) MetricsSnapshot() MetricsSnapshot {
	if a == nil || a.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return a.metrics.Snapshot()
}

// Metrics exposes the live counters, for the gate and exporters.
func (a *Authority) Metrics() *Metrics {
	if a == nil {
		return nil
	}
	return a.metrics
}

// GateConfig returns a copy of the gate settings.
func (a *Authority) GateConfig() GateConfig {
	if a == nil {
		return GateConfig{}
	}
	return GateConfig{
		BypassPrefixes: cloneStrings(a.config.Gate.BypassPrefixes),
		Authorities:    cloneStrings(a.config.Gate.Authorities),
	}
}

// Logger returns the authority's base logger.
func (a *Authority) Logger() *zap.Logger {
	if a == nil || a.log == nil {
		return zap.NewNop()
	}
	return a.log
}

// Registry returns the underlying refresh registry.
func (a *Authority) Registry() *refresh.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *Authority) metricInc(id MetricID) {
	if a == nil {
		return
	}
	a.metrics.Inc(id)
}

func (a *Authority) ready() error {
	if a == nil || a.tokens == nil || a.registry == nil {
		return ErrAuthorityNotReady
	}
	return nil
}

/*
====================================
TOKEN CODEC
====================================
*/

// IssueAccessToken mints an access token for subject.
func (a *Authority) IssueAccessToken(subject string) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	token, err := a.tokens.IssueAccess(subject)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	a.metricInc(MetricAccessIssued)
	return token, nil
}

// IssueRefreshToken mints a refresh token for subject on deviceID without
// recording it. Login is the registry-backed form.
func (a *Authority) IssueRefreshToken(subject, deviceID string) (jwt.RefreshToken, error) {
	if err := a.ready(); err != nil {
		return jwt.RefreshToken{}, err
	}
	rt, err := a.tokens.IssueRefresh(subject, deviceID)
	if err != nil {
		return jwt.RefreshToken{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	a.metricInc(MetricRefreshIssued)
	return rt, nil
}

// verifyAccess checks an access token, counts the outcome and, when
// enabled, records its latency. Callers check ready first.
func (a *Authority) verifyAccess(token string) jwt.Result {
	start := time.Now()
	res := a.tokens.VerifyAccess(token)
	a.metrics.Observe(MetricVerifyLatency, time.Since(start))

	if res.OK() {
		a.metricInc(MetricVerifySuccess)
	} else {
		a.metricInc(verifyFailureMetric(res.Failure))
	}
	return res
}

// Authenticate verifies an access token and derives the request principal.
// Failures are *AuthError values matching the ErrToken* sentinels; refresh
// tokens fail as ErrTokenUnsupported.
func (a *Authority) Authenticate(token string) (*Principal, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	res := a.verifyAccess(token)
	if !res.OK() {
		return nil, authError(res)
	}

	p := &Principal{
		Subject:     res.Claims.Subject,
		Authorities: cloneStrings(a.config.Gate.Authorities),
	}
	if res.Claims.IssuedAt != nil {
		p.IssuedAt = res.Claims.IssuedAt.Time
	}
	if res.Claims.ExpiresAt != nil {
		p.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return p, nil
}

/*
====================================
SESSION FLOWS
====================================
*/

// Login issues a fresh token pair for (userID, deviceID) and records the
// refresh session, replacing any previous session of the same device.
// Credential checks happen before Login is called.
func (a *Authority) Login(ctx context.Context, userID, deviceID string) (*TokenPair, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}

	pair, sessionID, err := a.issuePair(ctx, userID, deviceID)
	if err != nil {
		a.metricInc(MetricLoginFailure)
		a.emitAudit(ctx, auditEventLoginFailure, false, userID, deviceID, "", err)
		return nil, err
	}

	a.metricInc(MetricLoginSuccess)
	a.emitAudit(ctx, auditEventLoginSuccess, true, userID, deviceID, sessionID, nil)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token must
// verify and must carry the session identifier the registry currently holds
// for its subject and deviceID. A verified token whose identifier no longer
// matches was already rotated: the device session is revoked and
// ErrRefreshReuse is returned.
func (a *Authority) Refresh(ctx context.Context, refreshToken, deviceID string) (*TokenPair, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}

	res := a.tokens.VerifyRefresh(refreshToken)
	if !res.OK() {
		a.metricInc(MetricRefreshFailure)
		a.metricInc(verifyFailureMetric(res.Failure))
		err := fmt.Errorf("%w: %w", ErrRefreshInvalid, authError(res))
		a.emitAudit(ctx, auditEventRefreshInvalid, false, "", deviceID, "", err)
		return nil, err
	}
	userID := res.Claims.Subject
	presented := res.Claims.ID

	// A token minted for another device is rejected before the registry is
	// consulted, so it can never revoke that device.
	if res.Claims.Device != deviceID {
		a.metricInc(MetricRefreshFailure)
		err := fmt.Errorf("%w: token was issued for another device", ErrRefreshInvalid)
		a.emitAudit(ctx, auditEventRefreshInvalid, false, userID, deviceID, "", err)
		return nil, err
	}

	stored, err := a.registry.SessionID(ctx, userID, deviceID)
	if err != nil {
		a.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrStoreUnavailable) {
			a.metricInc(MetricStoreUnavailable)
		}
		a.emitAudit(ctx, auditEventRefreshInvalid, false, userID, deviceID, presented, err)
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		a.metricInc(MetricRefreshReuseDetected)
		a.log.Warn("refresh token reuse detected",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
		)
		if delErr := a.registry.Delete(ctx, userID, deviceID); delErr != nil {
			a.storeFailure(delErr)
		}
		a.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, deviceID, presented, ErrRefreshReuse)
		return nil, ErrRefreshReuse
	}

	pair, sessionID, err := a.issuePair(ctx, userID, deviceID)
	if err != nil {
		a.metricInc(MetricRefreshFailure)
		a.emitAudit(ctx, auditEventRefreshInvalid, false, userID, deviceID, presented, err)
		return nil, err
	}

	a.metricInc(MetricRefreshSuccess)
	a.emitAudit(ctx, auditEventRefreshSuccess, true, userID, deviceID, sessionID, nil)
	return pair, nil
}

// Logout revokes the refresh session of one device. Logging out a device
// without a session succeeds.
func (a *Authority) Logout(ctx context.Context, userID, deviceID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.registry.Delete(ctx, userID, deviceID); err != nil {
		a.storeFailure(err)
		a.emitAudit(ctx, auditEventLogoutSession, false, userID, deviceID, "", err)
		return err
	}
	a.metricInc(MetricLogout)
	a.emitAudit(ctx, auditEventLogoutSession, true, userID, deviceID, "", nil)
	return nil
}

// LogoutAll revokes every device session of userID and returns how many
// were still live.
func (a *Authority) LogoutAll(ctx context.Context, userID string) (int, error) {
	if err := a.ready(); err != nil {
		return 0, err
	}
	n, err := a.registry.RevokeAll(ctx, userID)
	if err != nil {
		a.storeFailure(err)
		a.emitAudit(ctx, auditEventLogoutAll, false, userID, "", "", err)
		return 0, err
	}
	a.metricInc(MetricLogoutAll)
	a.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil)
	return n, nil
}

// LogoutWithToken revokes the device session that refreshToken belongs to.
// The token must verify and still be the live session of its device, so
// only its holder can end that session.
func (a *Authority) LogoutWithToken(ctx context.Context, refreshToken string) error {
	if err := a.ready(); err != nil {
		return err
	}
	userID, deviceID, err := a.liveSession(ctx, refreshToken)
	if err != nil {
		a.emitAudit(ctx, auditEventLogoutSession, false, userID, deviceID, "", err)
		return err
	}
	return a.Logout(ctx, userID, deviceID)
}

// LogoutAllWithToken revokes every device session of the user that
// refreshToken belongs to. The token must be a live session.
func (a *Authority) LogoutAllWithToken(ctx context.Context, refreshToken string) (int, error) {
	if err := a.ready(); err != nil {
		return 0, err
	}
	userID, deviceID, err := a.liveSession(ctx, refreshToken)
	if err != nil {
		a.emitAudit(ctx, auditEventLogoutAll, false, userID, deviceID, "", err)
		return 0, err
	}
	return a.LogoutAll(ctx, userID)
}

// liveSession verifies refreshToken and checks that the registry still holds
// its session identifier.
func (a *Authority) liveSession(ctx context.Context, refreshToken string) (string, string, error) {
	res := a.tokens.VerifyRefresh(refreshToken)
	if !res.OK() {
		a.metricInc(verifyFailureMetric(res.Failure))
		return "", "", fmt.Errorf("%w: %w", ErrRefreshInvalid, authError(res))
	}
	userID, deviceID := res.Claims.Subject, res.Claims.Device

	stored, err := a.registry.SessionID(ctx, userID, deviceID)
	if err != nil {
		a.storeFailure(err)
		return userID, deviceID, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(res.Claims.ID)) != 1 {
		return userID, deviceID, fmt.Errorf("%w: session was rotated", ErrRefreshInvalid)
	}
	return userID, deviceID, nil
}

// Devices lists the devices indexed for userID.
func (a *Authority) Devices(ctx context.Context, userID string) ([]string, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	devices, err := a.registry.Devices(ctx, userID)
	if err != nil {
		a.storeFailure(err)
		return nil, err
	}
	return devices, nil
}

func (a *Authority) issuePair(ctx context.Context, userID, deviceID string) (*TokenPair, string, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(deviceID) == "" {
		return nil, "", fmt.Errorf("%w: user and device ids are required", ErrInvalidArgument)
	}
	access, err := a.IssueAccessToken(userID)
	if err != nil {
		return nil, "", err
	}
	rt, err := a.IssueRefreshToken(userID, deviceID)
	if err != nil {
		return nil, "", err
	}
	if err := a.registry.Save(ctx, userID, deviceID, rt.ID, rt.ExpiresAt); err != nil {
		a.storeFailure(err)
		return nil, "", err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     rt.Token,
		TokenType:        tokenTypeBearer,
		ExpiresIn:        int64(a.tokens.AccessTTL() / time.Second),
		RefreshExpiresAt: rt.ExpiresAt,
	}, rt.ID, nil
}

func (a *Authority) storeFailure(err error) {
	if errors.Is(err, ErrStoreUnavailable) {
		a.metricInc(MetricStoreUnavailable)
	}
}
