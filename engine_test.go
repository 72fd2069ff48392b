package authcore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/redisstore"
)

var (
	testAccessSecret  = []byte("access-secret-access-secret-0123456789")
	testRefreshSecret = []byte("refresh-secret-refresh-secret-0123456789")
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	store  *redisstore.Store
	rdb    *redis.Client
	mr     *miniredis.Miniredis
	clock  *testClock
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = testAccessSecret
	cfg.JWT.RefreshSecret = testRefreshSecret
	cfg.JWT.AccessTTL = time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.JWT.Leeway = 0
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config, *Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := redisstore.New(rdb, "test")
	clock := &testClock{t: time.Now()}
	cfg := engineTestConfig()
	b := New().WithStore(store).WithClock(clock.Now)
	if mutate != nil {
		mutate(&cfg, b)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	return &testEnv{engine: engine, store: store, rdb: rdb, mr: mr, clock: clock}
}

func (env *testEnv) register(t *testing.T, username, email, password string) PublicUser {
	t.Helper()
	u, err := env.engine.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
		FullName: "Test " + username,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func (env *testEnv) storedToken(t *testing.T, id string) (string, bool) {
	t.Helper()
	tok, ok, err := env.store.GetRefreshToken(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	return tok, ok
}

func (env *testEnv) login(t *testing.T, username, password string) LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res
}

func TestLoginIssuesPairAndPersistsRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.register(t, "Alice", "Alice@Example.com", "correct-horse")

	for _, req := range []LoginRequest{
		{Username: "alice", Password: "correct-horse"},
		{Email: "ALICE@example.com", Password: "correct-horse"},
		{Username: "  Alice ", Password: "correct-horse"},
	} {
		res, err := env.engine.Login(context.Background(), req)
		if err != nil {
			t.Fatalf("login %+v: %v", req, err)
		}
		if res.User.ID != u.ID || res.User.Username != "alice" || res.User.Email != "alice@example.com" {
			t.Fatalf("unexpected user %+v", res.User)
		}

		jm := testJWTManager(t, env.clock)
		access, err := jm.ParseAccess(res.Tokens.AccessToken)
		if err != nil {
			t.Fatalf("parse access: %v", err)
		}
		refresh, err := jm.ParseRefresh(res.Tokens.RefreshToken)
		if err != nil {
			t.Fatalf("parse refresh: %v", err)
		}
		if access.Subject != u.ID || refresh.Subject != u.ID {
			t.Fatalf("subject mismatch: access=%q refresh=%q want %q", access.Subject, refresh.Subject, u.ID)
		}

		stored, ok := env.storedToken(t, u.ID)
		if !ok || stored != res.Tokens.RefreshToken {
			t.Fatal("stored refresh token must equal the issued one")
		}
		if !res.Tokens.RefreshExpiresAt.After(res.Tokens.AccessExpiresAt) {
			t.Fatal("refresh must outlive access")
		}
	}
}

func TestLoginMissingFields(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")

	for _, req := range []LoginRequest{
		{},
		{Username: "alice"},
		{Password: "correct-horse"},
		{Username: "  ", Email: " ", Password: "correct-horse"},
	} {
		if _, err := env.engine.Login(context.Background(), req); !errors.Is(err, ErrMissingField) {
			t.Fatalf("login %+v: expected ErrMissingField, got %v", req, err)
		}
	}
}

func TestLoginDoesNotRevealRegistration(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, func(cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 16
		cfg.Audit.DropIfFull = false
		b.WithAuditSink(sink)
	})
	env.register(t, "alice", "alice@example.com", "correct-horse")

	_, errUnknown := env.engine.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	_, errWrong := env.engine.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "wrong-horse"})

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown != errWrong {
		t.Fatalf("external errors must be identical: %v vs %v", errUnknown, errWrong)
	}

	reasons := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sink.Events():
			if ev.EventType == auditEventLoginFailure {
				reasons[ev.Metadata["reason"]] = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for audit events")
		}
	}
	if !reasons["not_registered"] || !reasons["password_mismatch"] {
		t.Fatalf("audit must distinguish failure kinds, got %v", reasons)
	}
}

func TestRefreshRotationScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.register(t, "u1", "u1@example.com", "pw-u1-secret")
	first := env.login(t, "u1", "pw-u1-secret")
	r1 := first.Tokens.RefreshToken
	ctx := context.Background()

	second, err := env.engine.Refresh(ctx, RefreshRequest{CookieToken: r1})
	if err != nil {
		t.Fatalf("refresh(R1): %v", err)
	}
	r2 := second.RefreshToken
	if r2 == r1 || second.AccessToken == first.Tokens.AccessToken {
		t.Fatal("rotation must issue a new pair")
	}

	if _, err := env.engine.Refresh(ctx, RefreshRequest{CookieToken: r1}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("refresh(R1) again: expected ErrSessionRevoked, got %v", err)
	}

	third, err := env.engine.Refresh(ctx, RefreshRequest{BodyToken: r2})
	if err != nil {
		t.Fatalf("refresh(R2): %v", err)
	}

	if err := env.engine.Logout(ctx, u.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := env.storedToken(t, u.ID); ok {
		t.Fatal("logout must clear the stored token")
	}
	if _, err := env.engine.Refresh(ctx, RefreshRequest{BodyToken: third.RefreshToken}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("refresh after logout: expected ErrSessionRevoked, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 2 {
		t.Fatalf("expected 2 refresh successes, got %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", snap.Counters[MetricRefreshReuseDetected])
	}
}

func TestLoginInvalidatesEarlierRefreshTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")

	a := env.login(t, "alice", "correct-horse")
	b := env.login(t, "alice", "correct-horse")
	if a.Tokens.RefreshToken == b.Tokens.RefreshToken {
		t.Fatal("logins within the same instant must still differ")
	}

	if _, err := env.engine.RefreshToken(context.Background(), a.Tokens.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked for superseded token, got %v", err)
	}
	if _, err := env.engine.RefreshToken(context.Background(), b.Tokens.RefreshToken); err != nil {
		t.Fatalf("latest token must refresh: %v", err)
	}
}

func TestRefreshPrefersCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")

	_, err := env.engine.Refresh(context.Background(), RefreshRequest{
		CookieToken: res.Tokens.RefreshToken,
		BodyToken:   "garbage",
	})
	if err != nil {
		t.Fatalf("cookie token must win: %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), RefreshRequest{}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestRefreshRejectsBadTokensWithoutMutation(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")
	ctx := context.Background()

	forger, err := jwt.NewManager(jwt.Config{
		AccessSecret:  []byte("another-access-secret-another-access"),
		RefreshSecret: []byte("another-refresh-secret-another-refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "authcore",
		Now:           env.clock.Now,
	})
	if err != nil {
		t.Fatalf("forger: %v", err)
	}
	forged, err := forger.IssuePair(jwt.Subject{ID: u.ID})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"wrong secret", forged.RefreshToken, ErrSignatureInvalid},
		{"access token as refresh", res.Tokens.AccessToken, ErrSignatureInvalid},
		{"garbage", "not.a.jwt", ErrSignatureInvalid},
		{"tampered", res.Tokens.RefreshToken + "x", ErrSignatureInvalid},
	}
	for _, tc := range cases {
		if _, err := env.engine.RefreshToken(ctx, tc.token); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		stored, ok := env.storedToken(t, u.ID)
		if !ok || stored != res.Tokens.RefreshToken {
			t.Fatalf("%s: store must be untouched", tc.name)
		}
	}

	env.clock.Advance(2 * time.Hour)
	if _, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	stored, ok := env.storedToken(t, u.ID)
	if !ok || stored != res.Tokens.RefreshToken {
		t.Fatal("expired refresh must not mutate the store")
	}
}

func TestRefreshExpiredWithDefaultLeeway(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.JWT.Leeway = defaultConfig().JWT.Leeway
	})
	u := env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")
	ctx := context.Background()

	env.clock.Advance(res.Tokens.RefreshExpiresAt.Sub(env.clock.Now()) + 10*time.Second)
	pair, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past refresh expiry, got err=%v pair issued=%v", err, pair.RefreshToken != "")
	}
	stored, ok := env.storedToken(t, u.ID)
	if !ok || stored != res.Tokens.RefreshToken {
		t.Fatal("expired refresh must not mutate the store")
	}
}

func TestRefreshUnknownSubject(t *testing.T) {
	env := newTestEnv(t, nil)
	jm := testJWTManager(t, env.clock)
	pair, err := jm.IssuePair(jwt.Subject{ID: "ghost"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.RefreshToken(context.Background(), pair.RefreshToken); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	revoked := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrSessionRevoked) {
			revoked++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if revoked != n-1 {
		t.Fatalf("expected %d ErrSessionRevoked, got %d", n-1, revoked)
	}
}

func TestRevokeOnReuseClearsSession(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.Security.RevokeOnReuse = true
	})
	u := env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")

	rotated, err := env.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := env.engine.RefreshToken(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("replay: expected ErrSessionRevoked, got %v", err)
	}
	if _, ok := env.storedToken(t, u.ID); ok {
		t.Fatal("replay must clear the stored token when RevokeOnReuse is set")
	}
	if _, err := env.engine.RefreshToken(context.Background(), rotated.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("legitimate token must be revoked too, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.register(t, "alice", "alice@example.com", "correct-horse")
	env.login(t, "alice", "correct-horse")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.engine.Logout(ctx, u.ID); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	if err := env.engine.Logout(ctx, "no-such-identity"); err != nil {
		t.Fatalf("logout of unknown identity: %v", err)
	}
	if err := env.engine.Logout(ctx, ""); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

type failingSetStore struct {
	account.Store
}

func (failingSetStore) SetRefreshToken(context.Context, string, string) error {
	return account.ErrNotFound
}

type failingRotateStore struct {
	account.Store
}

func (failingRotateStore) RotateRefreshToken(context.Context, string, string, string) error {
	return account.ErrUnavailable
}

func TestLoginPersistenceFailureWithholdsTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")

	engine, err := New().
		WithConfig(engineTestConfig()).
		WithStore(failingSetStore{Store: env.store}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res, err := engine.Login(context.Background(), LoginRequest{Username: "alice", Password: "correct-horse"})
	if !errors.Is(err, ErrTokenPersistenceFailed) {
		t.Fatalf("expected ErrTokenPersistenceFailed, got %v", err)
	}
	if res.Tokens.AccessToken != "" || res.Tokens.RefreshToken != "" {
		t.Fatal("tokens must not be returned when persistence fails")
	}
	if got := engine.MetricsSnapshot().Counters[MetricTokenPersistenceFailure]; got != 1 {
		t.Fatalf("expected persistence failure metric, got %d", got)
	}
}

func TestRefreshPersistenceFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")

	engine, err := New().
		WithConfig(engineTestConfig()).
		WithStore(failingRotateStore{Store: env.store}).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	pair, err := engine.RefreshToken(context.Background(), res.Tokens.RefreshToken)
	if !errors.Is(err, ErrTokenPersistenceFailed) {
		t.Fatalf("expected ErrTokenPersistenceFailed, got %v", err)
	}
	if pair.RefreshToken != "" {
		t.Fatal("tokens must not be returned when rotation fails")
	}
}

func TestRegisterValidationAndDuplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u := env.register(t, "Alice", "alice@example.com", "correct-horse")
	if u.Username != "alice" || u.FullName != "Test Alice" {
		t.Fatalf("unexpected registered user %+v", u)
	}

	if _, err := env.engine.Register(ctx, RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw"}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("missing full name: expected ErrMissingField, got %v", err)
	}
	for _, req := range []RegisterRequest{
		{Username: "ALICE", Email: "other@example.com", Password: "pw", FullName: "A"},
		{Username: "other", Email: "Alice@Example.com", Password: "pw", FullName: "A"},
	} {
		if _, err := env.engine.Register(ctx, req); !errors.Is(err, ErrAccountExists) {
			t.Fatalf("register %+v: expected ErrAccountExists, got %v", req, err)
		}
	}
}

func TestValidateAndProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.register(t, "alice", "alice@example.com", "correct-horse")
	res := env.login(t, "alice", "correct-horse")
	ctx := context.Background()

	auth, err := env.engine.Validate(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if auth.UserID != u.ID || auth.Username != "alice" {
		t.Fatalf("unexpected auth result %+v", auth)
	}
	if _, err := env.engine.Validate(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("refresh token must not validate as access, got %v", err)
	}

	name := "Alice Liddell"
	updated, err := env.engine.UpdateProfile(ctx, u.ID, ProfilePatch{FullName: &name})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.FullName != name {
		t.Fatalf("expected updated name, got %q", updated.FullName)
	}
	stored, ok := env.storedToken(t, u.ID)
	if !ok || stored != res.Tokens.RefreshToken {
		t.Fatal("profile updates must not touch the refresh token")
	}

	blank := "  "
	if _, err := env.engine.UpdateProfile(ctx, u.ID, ProfilePatch{FullName: &blank}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := env.engine.CurrentUser(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	env.clock.Advance(2 * time.Minute)
	if _, err := env.engine.Validate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")

	cfg := engineTestConfig()
	cfg.Security.MaxLoginAttempts = 2
	engine, err := New().WithConfig(cfg).WithStore(env.store).WithRedis(env.rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, LoginRequest{Username: "alice", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := engine.Login(ctx, LoginRequest{Username: "alice", Password: "correct-horse"}); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	env.mr.FastForward(cfg.Security.LoginCooldownDuration + time.Second)
	if _, err := engine.Login(ctx, LoginRequest{Username: "alice", Password: "correct-horse"}); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
}

func TestLoginBudgetSharedByUsernameAndEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "alice@example.com", "correct-horse")

	cfg := engineTestConfig()
	cfg.Security.MaxLoginAttempts = 3
	engine, err := New().WithConfig(cfg).WithStore(env.store).WithRedis(env.rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	ctx := context.Background()

	attempts := []LoginRequest{
		{Username: "alice", Password: "nope"},
		{Email: "Alice@Example.com", Password: "nope"},
		{Username: "ALICE", Password: "nope"},
	}
	for i, req := range attempts {
		if _, err := engine.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse"}); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("alternating identifiers must share one budget, got %v", err)
	}

	env.mr.FastForward(cfg.Security.LoginCooldownDuration + time.Second)
	if _, err := engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(ctx, LoginRequest{Username: "alice", Password: "correct-horse"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, key := range []string{"alice", "alice@example.com"} {
		if env.mr.Exists("ac:al:" + key) {
			t.Fatalf("successful login must reset %q", key)
		}
	}
}

func TestLoginThrottleKeys(t *testing.T) {
	got := loginThrottleKeys(" Alice ", "alice@example.com", "", "ALICE")
	want := []string{"alice", "alice@example.com"}
	if !slices.Equal(got, want) {
		t.Fatalf("loginThrottleKeys = %v, want %v", got, want)
	}
}

func TestClosedEngineNotReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.engine.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := env.engine.Login(context.Background(), LoginRequest{Username: "a", Password: "b"}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}

	var nilEngine *Engine
	if err := nilEngine.Logout(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady on nil engine, got %v", err)
	}
}

func TestNilEngineAccessors(t *testing.T) {
	var e *Engine
	def := defaultConfig()
	if got := e.AccessTTL(); got != def.JWT.AccessTTL {
		t.Fatalf("AccessTTL() = %v, want %v", got, def.JWT.AccessTTL)
	}
	if got := e.RefreshTTL(); got != def.JWT.RefreshTTL {
		t.Fatalf("RefreshTTL() = %v, want %v", got, def.JWT.RefreshTTL)
	}
	if got := e.CookieConfig(); got != def.Cookie {
		t.Fatalf("CookieConfig() = %+v, want %+v", got, def.Cookie)
	}
	if e.AuditDropped() != 0 {
		t.Fatal("AuditDropped() must be zero on a nil engine")
	}
}

func testJWTManager(t *testing.T, clock *testClock) *jwt.Manager {
	t.Helper()
	cfg := engineTestConfig()
	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	return jm
}
