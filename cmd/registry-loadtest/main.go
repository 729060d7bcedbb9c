package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessionAuth/jwt"
	"github.com/MrEthical07/sessionAuth/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type deviceState struct {
	userID   string
	deviceID string
	sid      string
	mu       sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		devices     = flag.Int("devices", 2, "devices per user")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify, lookup, rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "rt", "registry key prefix")
	)
	flag.Parse()

	if *users <= 0 || *devices <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, devices, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	registry := refresh.NewRegistry(client, refresh.Options{
		KeyPrefix:   *prefix,
		IndexPrefix: *prefix + "idx",
	})

	key, err := jwt.NewKey(uuid.NewString() + uuid.NewString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "key: %v\n", err)
		os.Exit(1)
	}
	tokens, err := jwt.NewManager(jwt.Config{
		Key:        key,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "token manager: %v\n", err)
		os.Exit(1)
	}

	total := *users * *devices
	states := make([]deviceState, 0, total)
	fmt.Printf("seeding %d device sessions...\n", total)
	startSeed := time.Now()
	expiresAt := time.Now().Add(24 * time.Hour)
	for u := 0; u < *users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		for d := 0; d < *devices; d++ {
			deviceID := fmt.Sprintf("device-%d", d)
			sid := uuid.NewString()
			if err := registry.Save(ctx, userID, deviceID, sid, expiresAt); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
				os.Exit(1)
			}
			states = append(states, deviceState{userID: userID, deviceID: deviceID, sid: sid})
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	access, err := tokens.IssueAccess("user-0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		os.Exit(1)
	}

	verifyStats := runPhase(*ops, *concurrency, func(_ *rand.Rand) error {
		if res := tokens.VerifyAccess(access); !res.OK() {
			return res.Err
		}
		return nil
	})
	lookupStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		_, err := registry.SessionID(ctx, s.userID, s.deviceID)
		return err
	})
	rotateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		current, err := registry.SessionID(ctx, s.userID, s.deviceID)
		if err != nil {
			return err
		}
		if current != s.sid {
			return fmt.Errorf("unexpected session id for %s/%s", s.userID, s.deviceID)
		}
		next := uuid.NewString()
		if err := registry.Save(ctx, s.userID, s.deviceID, next, expiresAt); err != nil {
			return err
		}
		s.sid = next
		return nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("lookup", lookupStats)
	printStats("rotate", rotateStats)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
