package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/account"
)

// CredentialFailureKind classifies credential verification failures.
type CredentialFailureKind int

const (
	CredentialFailureNone CredentialFailureKind = iota
	CredentialFailureMissingField
	CredentialFailureNotRegistered
	CredentialFailurePasswordMismatch
	CredentialFailureStore
)

// CredentialResult carries the verified identity or failure metadata.
type CredentialResult struct {
	Failure  CredentialFailureKind
	Err      error
	Identity account.Identity
	// Upgraded is set when the stored hash was replaced after a successful
	// verify.
	Upgraded bool
}

// CredentialDeps captures credential verification dependencies.
type CredentialDeps struct {
	FindByUsernameOrEmail func(ctx context.Context, username, email string) (account.Identity, error)
	UpdatePasswordHash    func(ctx context.Context, id, hash string) error

	VerifyPassword       func(plaintext, encodedHash string) (bool, error)
	PasswordNeedsUpgrade func(encodedHash string) (bool, error)
	HashPassword         func(plaintext string) (string, error)

	// DecoyHash is verified against when no identity matches, so a miss costs
	// the same as a wrong password.
	DecoyHash      string
	UpgradeOnLogin bool
	Warn           func(string, ...any)
}

// RunVerifyCredentials looks up exactly one identity by username or email and
// checks password against its stored hash.
func RunVerifyCredentials(ctx context.Context, username, email, password string, deps CredentialDeps) CredentialResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	username = account.NormalizeIdentifier(username)
	email = account.NormalizeIdentifier(email)
	if password == "" || (username == "" && email == "") {
		return CredentialResult{Failure: CredentialFailureMissingField}
	}

	identity, err := deps.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			if deps.DecoyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DecoyHash)
			}
			return CredentialResult{Failure: CredentialFailureNotRegistered, Err: err}
		}
		return CredentialResult{Failure: CredentialFailureStore, Err: err}
	}

	ok, err := deps.VerifyPassword(password, identity.PasswordHash)
	if err != nil || !ok {
		return CredentialResult{
			Failure:  CredentialFailurePasswordMismatch,
			Err:      err,
			Identity: identity,
		}
	}

	result := CredentialResult{Identity: identity}
	if deps.UpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(identity.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, identity.ID, upgradedHash); err != nil {
					deps.Warn("authcore: password hash upgrade update failed", "user_id", identity.ID, "error", err)
				} else {
					result.Identity.PasswordHash = upgradedHash
					result.Upgraded = true
				}
			} else {
				deps.Warn("authcore: password hash upgrade generation failed", "user_id", identity.ID, "error", err)
			}
		}
	}

	return result
}
