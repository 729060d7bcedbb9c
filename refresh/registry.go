package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable wraps every failed Redis round-trip.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
	// ErrSessionNotFound is returned by SessionID when no live record exists
	// for the (user, device) pair. It also matches redis.Nil.
	ErrSessionNotFound = errors.New("refresh session not found")
	// ErrInvalidArgument is returned for empty identifiers. Redis is not
	// contacted.
	ErrInvalidArgument = errors.New("invalid refresh registry argument")
)

const (
	// MinTTL is the floor applied to every record, including records whose
	// expiry is already in the past.
	MinTTL = time.Second

	defaultKeyPrefix   = "rt"
	defaultIndexPrefix = "rtidx"
)

// Options tunes a [Registry]. Zero values select the documented defaults.
type Options struct {
	// KeyPrefix namespaces per-device records: {KeyPrefix}:{user}:{device}.
	KeyPrefix string
	// IndexPrefix namespaces device indexes: {IndexPrefix}:{user}.
	IndexPrefix string
	Now         func() time.Time
	Logger      *zap.Logger
}

// Registry records the current refresh session identifier for every
// (user, device) pair in Redis, plus a per-user device index used for bulk
// revocation.
//
// Record writes and index writes are submitted in one MULTI/EXEC block, so a
// crash between them cannot split the pair. The index carries no TTL: a
// record that expires on its own leaves a stale index entry until the next
// Delete or RevokeAll for that user, which is harmless because revocation of
// an absent key is a no-op.
type Registry struct {
	redis       redis.UniversalClient
	keyPrefix   string
	indexPrefix string
	now         func() time.Time
	log         *zap.Logger
}

// NewRegistry creates a [Registry] backed by client.
func NewRegistry(client redis.UniversalClient, opts Options) *Registry {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.IndexPrefix == "" {
		opts.IndexPrefix = defaultIndexPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{
		redis:       client,
		keyPrefix:   opts.KeyPrefix,
		indexPrefix: opts.IndexPrefix,
		now:         opts.Now,
		log:         opts.Logger.Named("refresh"),
	}
}

func (r *Registry) key(userID, deviceID string) string {
	return r.keyPrefix + ":" + userID + ":" + deviceID
}

func (r *Registry) indexKey(userID string) string {
	return r.indexPrefix + ":" + userID
}

// TTL returns the time-to-live Save would apply for expiresAt: the remaining
// validity truncated to whole seconds, never below MinTTL.
func (r *Registry) TTL(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now()).Truncate(time.Second)
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

// Save records sessionID as the live refresh session for (userID, deviceID)
// and adds deviceID to the user's device index. An existing record for the
// same device is overwritten.
//
//	Performance: 1 round-trip (MULTI SET SADD EXEC).
func (r *Registry) Save(ctx context.Context, userID, deviceID, sessionID string, expiresAt time.Time) error {
	if err := requireIDs(userID, deviceID); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidArgument)
	}

	ttl := r.TTL(expiresAt)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(userID, deviceID), sessionID, ttl)
		pipe.SAdd(ctx, r.indexKey(userID), deviceID)
		return nil
	})
	if err != nil {
		return r.unavailable("save", userID, err)
	}
	return nil
}

// SessionID returns the live session identifier for (userID, deviceID), or
// ErrSessionNotFound when none exists.
func (r *Registry) SessionID(ctx context.Context, userID, deviceID string) (string, error) {
	if err := requireIDs(userID, deviceID); err != nil {
		return "", err
	}
	sessionID, err := r.redis.Get(ctx, r.key(userID, deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %w", ErrSessionNotFound, redis.Nil)
		}
		return "", r.unavailable("get", userID, err)
	}
	return sessionID, nil
}

// Delete removes the record for (userID, deviceID) and drops deviceID from
// the index. Deleting an absent device is a no-op.
func (r *Registry) Delete(ctx context.Context, userID, deviceID string) error {
	if err := requireIDs(userID, deviceID); err != nil {
		return err
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(userID, deviceID))
		pipe.SRem(ctx, r.indexKey(userID), deviceID)
		return nil
	})
	if err != nil {
		return r.unavailable("delete", userID, err)
	}
	return nil
}

// RevokeAll deletes the record of every indexed device for userID and then
// the index itself. It returns how many device records still existed.
//
// A device saved concurrently between the index read and the delete can
// survive revocation; callers that need a hard cut-off should also rotate
// whatever the access tokens are bound to.
func (r *Registry) RevokeAll(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	indexKey := r.indexKey(userID)

	devices, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, r.unavailable("revoke_all_index", userID, err)
	}

	keys := make([]string, 0, len(devices))
	for _, deviceID := range devices {
		keys = append(keys, r.key(userID, deviceID))
	}

	var deleted *redis.IntCmd
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, r.unavailable("revoke_all", userID, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// Devices lists the indexed device identifiers for userID in sorted order.
// The list may include devices whose record already expired.
func (r *Registry) Devices(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	devices, err := r.redis.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, r.unavailable("devices", userID, err)
	}
	sort.Strings(devices)
	return devices, nil
}

// Ping measures one round-trip to the backing store.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return 0, r.unavailable("ping", "", err)
	}
	return time.Since(start), nil
}

func (r *Registry) unavailable(op, userID string, err error) error {
	r.log.Error("refresh store call failed",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func requireIDs(userID, deviceID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidArgument)
	}
	return nil
}
