package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg), mr
}

func TestAllowWithinBudget(t *testing.T) {
	l, mr := newLimiter(t, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "login", "10.0.0.1"); err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "login", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "login", "10.0.0.2"); err != nil {
		t.Fatalf("other id must have its own budget: %v", err)
	}

	if ttl := mr.TTL("rl:login:10.0.0.1"); ttl != time.Minute {
		t.Fatalf("expected window ttl 1m, got %v", ttl)
	}
}

func TestWindowExpiry(t *testing.T) {
	l, mr := newLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Allow(ctx, "refresh", "ip"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(ctx, "refresh", "ip"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "refresh", "ip"); err != nil {
		t.Fatalf("new window should allow: %v", err)
	}
}

func TestDisabledLimiter(t *testing.T) {
	l, mr := newLimiter(t, Config{})
	for i := 0; i < 10; i++ {
		if err := l.Allow(context.Background(), "login", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("disabled limiter must not touch redis, keys=%v", mr.Keys())
	}
}

func TestRedisDown(t *testing.T) {
	l, mr := newLimiter(t, Config{Limit: 1, Window: time.Minute})
	mr.Close()
	if err := l.Allow(context.Background(), "login", "x"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
