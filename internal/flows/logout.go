package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/account"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureMissingIdentity
	LogoutFailureStore
)

// LogoutResult reports the outcome of a revocation.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
	// UnknownIdentity is set when the identity no longer exists. The call
	// still succeeds.
	UnknownIdentity bool
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ClearRefreshToken func(ctx context.Context, id string) error
}

// RunLogout clears the stored refresh token for identityID unconditionally.
// Clearing an already-absent token is a success.
func RunLogout(ctx context.Context, identityID string, deps LogoutDeps) LogoutResult {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return LogoutResult{Failure: LogoutFailureMissingIdentity}
	}

	if err := deps.ClearRefreshToken(ctx, identityID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return LogoutResult{UnknownIdentity: true}
		}
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	return LogoutResult{}
}
