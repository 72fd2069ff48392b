// Command authcore-loadtest drives refresh-token lookups and rotations against
// a redisstore and checks that contended rotations produce one winner each.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/redisstore"
)

type identityState struct {
	id    string
	token string
	mu    sync.Mutex
}

func main() {
	var (
		identities  = flag.Int("identities", 10000, "number of identities to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		contenders  = flag.Int("contenders", 8, "goroutines racing per contended rotation")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "store key prefix")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 || *contenders <= 1 {
		fmt.Fprintln(os.Stderr, "identities, concurrency and ops must be > 0; contenders must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := redisstore.New(client, *prefix)

	fmt.Printf("seeding %d identities...\n", *identities)
	startSeed := time.Now()
	states, err := seed(ctx, store, *identities)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runLookupPhase(ctx, store, states, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, store, states, *ops, *concurrency)
	violations, races := runContendedPhase(ctx, store, states, *contenders)

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("rotate", rotateStats)
	fmt.Printf("contended: races=%d single-winner violations=%d\n", races, violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func seed(ctx context.Context, store account.Store, n int) ([]identityState, error) {
	states := make([]identityState, n)
	for i := 0; i < n; i++ {
		created, err := store.Create(ctx, account.Identity{
			Username:     fmt.Sprintf("user-%d", i),
			Email:        fmt.Sprintf("user-%d@loadtest.local", i),
			PasswordHash: "unused",
			Profile:      account.Profile{FullName: "Load Test"},
		})
		if err != nil {
			return nil, err
		}
		token := tokenFor(i, 0)
		if err := store.SetRefreshToken(ctx, created.ID, token); err != nil {
			return nil, err
		}
		states[i] = identityState{id: created.ID, token: token}
	}
	return states, nil
}

func runLookupPhase(ctx context.Context, store account.Store, states []identityState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		_, _, err := store.GetRefreshToken(ctx, state.id)
		return err
	})
}

func runRotatePhase(ctx context.Context, store account.Store, states []identityState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, i int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		next := tokenFor(i, r.Int())
		if err := store.RotateRefreshToken(ctx, state.id, state.token, next); err != nil {
			return err
		}
		state.token = next
		return nil
	})
}

// runContendedPhase races contenders goroutines on each identity's current
// token. Exactly one rotation per identity may succeed.
func runContendedPhase(ctx context.Context, store account.Store, states []identityState, contenders int) (violations, races int) {
	for i := range states {
		state := &states[i]
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			other   atomic.Int32
		)
		for c := 0; c < contenders; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				err := store.RotateRefreshToken(ctx, state.id, state.token, tokenFor(i, -c-1))
				switch {
				case err == nil:
					winners.Add(1)
				case errors.Is(err, account.ErrTokenMismatch):
				default:
					other.Add(1)
				}
			}(c)
		}
		wg.Wait()
		races++
		if winners.Load() != 1 || other.Load() != 0 {
			violations++
		}
	}
	return violations, races
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
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

func tokenFor(i, salt int) string {
	return fmt.Sprintf("rt-%d-%d", i, salt)
}
