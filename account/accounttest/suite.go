// Package accounttest holds a conformance suite every account.Store
// implementation runs from its own tests.
package accounttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/authcore/account"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) account.Store

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s account.Store)
	}{
		{"CreateAndLookup", testCreateAndLookup},
		{"LookupPrefersUsername", testLookupPrefersUsername},
		{"CreateRejectsDuplicates", testCreateRejectsDuplicates},
		{"RefreshTokenLifecycle", testRefreshTokenLifecycle},
		{"MissingIdentity", testMissingIdentity},
		{"RotateCompareAndSet", testRotateCompareAndSet},
		{"ConcurrentRotateSingleWinner", testConcurrentRotateSingleWinner},
		{"FieldsSurviveNarrowUpdates", testFieldsSurviveNarrowUpdates},
		{"UpdateProfileEmail", testUpdateProfileEmail},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func mustCreate(t *testing.T, s account.Store, username, email string) account.Identity {
	t.Helper()
	id, err := s.Create(context.Background(), account.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: "hash-" + username,
		Profile:      account.Profile{FullName: "Full " + username, Avatar: "https://cdn.example/" + username + ".png"},
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	if id.ID == "" {
		t.Fatalf("create %s: expected generated id", username)
	}
	return id
}

func testCreateAndLookup(t *testing.T, s account.Store) {
	ctx := context.Background()
	created := mustCreate(t, s, "  Alice ", "Alice@Example.com")
	if created.Username != "alice" || created.Email != "alice@example.com" {
		t.Fatalf("expected normalized identifiers, got %q %q", created.Username, created.Email)
	}

	byName, err := s.FindByUsernameOrEmail(ctx, "ALICE", "")
	if err != nil {
		t.Fatalf("lookup by username: %v", err)
	}
	if byName.ID != created.ID {
		t.Fatalf("lookup by username returned %q, want %q", byName.ID, created.ID)
	}

	byEmail, err := s.FindByUsernameOrEmail(ctx, "", "alice@example.com")
	if err != nil {
		t.Fatalf("lookup by email: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("lookup by email returned %q, want %q", byEmail.ID, created.ID)
	}
	// Only the identifiers are normalized; other fields are stored verbatim.
	if byEmail.PasswordHash != "hash-  Alice " || byEmail.Profile.FullName != "Full   Alice " {
		t.Fatalf("record fields not persisted: %+v", byEmail)
	}
	if byEmail.Profile.Avatar != created.Profile.Avatar {
		t.Fatalf("avatar = %q, want %q", byEmail.Profile.Avatar, created.Profile.Avatar)
	}

	byID, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("lookup by id: %v", err)
	}
	if byID.Username != "alice" {
		t.Fatalf("unexpected username %q", byID.Username)
	}

	if _, err := s.FindByUsernameOrEmail(ctx, "nobody", "nobody@example.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByUsernameOrEmail(ctx, "", ""); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty identifiers, got %v", err)
	}
}

func testLookupPrefersUsername(t *testing.T, s account.Store) {
	a := mustCreate(t, s, "alice", "alice@example.com")
	mustCreate(t, s, "bob", "bob@example.com")

	got, err := s.FindByUsernameOrEmail(context.Background(), "alice", "bob@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("expected username match to win, got %q", got.Username)
	}

	got, err = s.FindByUsernameOrEmail(context.Background(), "ghost", "bob@example.com")
	if err != nil {
		t.Fatalf("lookup with unknown username: %v", err)
	}
	if got.Username != "bob" {
		t.Fatalf("expected email fallback to bob, got %q", got.Username)
	}
}

func testCreateRejectsDuplicates(t *testing.T, s account.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice", "alice@example.com")

	if _, err := s.Create(ctx, account.Identity{Username: "ALICE", Email: "other@example.com", PasswordHash: "x"}); !errors.Is(err, account.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}
	if _, err := s.Create(ctx, account.Identity{Username: "other", Email: "alice@example.com", PasswordHash: "x"}); !errors.Is(err, account.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}
	if _, err := s.FindByUsernameOrEmail(ctx, "other", ""); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("rejected create must not leave a record behind, got %v", err)
	}
}

func testRefreshTokenLifecycle(t *testing.T, s account.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, "alice", "alice@example.com").ID

	if _, ok, err := s.GetRefreshToken(ctx, id); err != nil || ok {
		t.Fatalf("new identity should have no token, ok=%v err=%v", ok, err)
	}

	if err := s.SetRefreshToken(ctx, id, "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetRefreshToken(ctx, id, "r2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	token, ok, err := s.GetRefreshToken(ctx, id)
	if err != nil || !ok || token != "r2" {
		t.Fatalf("get after overwrite: token=%q ok=%v err=%v", token, ok, err)
	}

	if err := s.ClearRefreshToken(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.ClearRefreshToken(ctx, id); err != nil {
		t.Fatalf("second clear must be a no-op, got %v", err)
	}
	if _, ok, err := s.GetRefreshToken(ctx, id); err != nil || ok {
		t.Fatalf("token should be absent after clear, ok=%v err=%v", ok, err)
	}
}

func testMissingIdentity(t *testing.T, s account.Store) {
	ctx := context.Background()
	const ghost = "00000000-0000-0000-0000-000000000000"

	if _, err := s.FindByID(ctx, ghost); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("FindByID: expected ErrNotFound, got %v", err)
	}
	if err := s.SetRefreshToken(ctx, ghost, "r1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("SetRefreshToken: expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.GetRefreshToken(ctx, ghost); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("GetRefreshToken: expected ErrNotFound, got %v", err)
	}
	if err := s.ClearRefreshToken(ctx, ghost); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("ClearRefreshToken: expected ErrNotFound, got %v", err)
	}
	if err := s.RotateRefreshToken(ctx, ghost, "r1", "r2"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("RotateRefreshToken: expected ErrNotFound, got %v", err)
	}
	name := "x"
	if _, err := s.UpdateProfile(ctx, ghost, account.ProfilePatch{FullName: &name}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("UpdateProfile: expected ErrNotFound, got %v", err)
	}
}

func testRotateCompareAndSet(t *testing.T, s account.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, "alice", "alice@example.com").ID

	if err := s.RotateRefreshToken(ctx, id, "r1", "r2"); !errors.Is(err, account.ErrTokenMismatch) {
		t.Fatalf("rotate with no stored token: expected ErrTokenMismatch, got %v", err)
	}

	if err := s.SetRefreshToken(ctx, id, "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.RotateRefreshToken(ctx, id, "r1", "r2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := s.RotateRefreshToken(ctx, id, "r1", "r3"); !errors.Is(err, account.ErrTokenMismatch) {
		t.Fatalf("replayed rotate: expected ErrTokenMismatch, got %v", err)
	}
	token, _, err := s.GetRefreshToken(ctx, id)
	if err != nil || token != "r2" {
		t.Fatalf("stored token should remain r2, got %q err=%v", token, err)
	}
}

func testConcurrentRotateSingleWinner(t *testing.T, s account.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, "alice", "alice@example.com").ID
	if err := s.SetRefreshToken(ctx, id, "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	const workers = 16
	var success atomic.Int64
	var mismatch atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.RotateRefreshToken(ctx, id, "r1", fmt.Sprintf("next-%d", i))
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, account.ErrTokenMismatch):
				mismatch.Add(1)
			default:
				errs <- err
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected rotate error: %v", err)
	}
	if success.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", success.Load())
	}
	if mismatch.Load() != workers-1 {
		t.Fatalf("expected %d mismatches, got %d", workers-1, mismatch.Load())
	}
}

func testFieldsSurviveNarrowUpdates(t *testing.T, s account.Store) {
	ctx := context.Background()
	created := mustCreate(t, s, "alice", "alice@example.com")
	id := created.ID

	if err := s.SetRefreshToken(ctx, id, "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.RotateRefreshToken(ctx, id, "r1", "r2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	got, err := s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Profile != created.Profile || got.PasswordHash != created.PasswordHash || got.Email != created.Email {
		t.Fatalf("token ops changed other fields: before=%+v after=%+v", created, got)
	}

	name := "Alice Liddell"
	updated, err := s.UpdateProfile(ctx, id, account.ProfilePatch{FullName: &name})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Profile.FullName != name || updated.Profile.Avatar != created.Profile.Avatar {
		t.Fatalf("unexpected profile after update: %+v", updated.Profile)
	}
	if updated.RefreshToken != "r2" {
		t.Fatalf("profile update changed refresh token: %q", updated.RefreshToken)
	}

	if err := s.UpdatePasswordHash(ctx, id, "new-hash"); err != nil {
		t.Fatalf("update password hash: %v", err)
	}
	got, err = s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PasswordHash != "new-hash" || got.RefreshToken != "r2" || got.Profile.FullName != name {
		t.Fatalf("password update touched other fields: %+v", got)
	}
}

func testUpdateProfileEmail(t *testing.T, s account.Store) {
	ctx := context.Background()
	alice := mustCreate(t, s, "alice", "alice@example.com")
	mustCreate(t, s, "bob", "bob@example.com")

	taken := "BOB@example.com"
	if _, err := s.UpdateProfile(ctx, alice.ID, account.ProfilePatch{Email: &taken}); !errors.Is(err, account.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	fresh := "Alice.New@Example.com"
	updated, err := s.UpdateProfile(ctx, alice.ID, account.ProfilePatch{Email: &fresh})
	if err != nil {
		t.Fatalf("update email: %v", err)
	}
	if updated.Email != "alice.new@example.com" {
		t.Fatalf("expected normalized email, got %q", updated.Email)
	}
	if _, err := s.FindByUsernameOrEmail(ctx, "", "alice@example.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("old email should no longer resolve, got %v", err)
	}
	got, err := s.FindByUsernameOrEmail(ctx, "", "alice.new@example.com")
	if err != nil || got.ID != alice.ID {
		t.Fatalf("new email should resolve to alice, got %+v err=%v", got, err)
	}
}
