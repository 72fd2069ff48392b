package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissingToken
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureUnknownSubject
	RefreshFailureLookup
	RefreshFailureRevoked
	RefreshFailureSign
	RefreshFailurePersist
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	// Reused is set when a well-signed token was presented after it had been
	// superseded by a newer one.
	Reused bool
	// Revoked is set when reuse caused the stored token to be cleared.
	Revoked bool
	Pair    jwt.Pair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh       func(string) (*jwt.RefreshClaims, error)
	FindByID           func(ctx context.Context, id string) (account.Identity, error)
	GetRefreshToken    func(ctx context.Context, id string) (string, bool, error)
	RotateRefreshToken func(ctx context.Context, id, presented, next string) error
	ClearRefreshToken  func(ctx context.Context, id string) error
	IssuePair          func(jwt.Subject) (jwt.Pair, error)
	RevokeOnReuse      bool
	Warn               func(string, ...any)
}

// ExtractRefreshToken returns the cookie token when present and the body
// token otherwise.
func ExtractRefreshToken(cookieToken, bodyToken string) string {
	if t := strings.TrimSpace(cookieToken); t != "" {
		return t
	}
	return strings.TrimSpace(bodyToken)
}

// RunRefresh executes the rotation protocol. Every step before the final
// compare-and-set is read-only.
func RunRefresh(ctx context.Context, cookieToken, bodyToken string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	presented := ExtractRefreshToken(cookieToken, bodyToken)
	if presented == "" {
		return RefreshResult{Failure: RefreshFailureMissingToken}
	}

	claims, err := deps.ParseRefresh(presented)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}
	userID := claims.Subject

	identity, err := deps.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureUnknownSubject, Err: err, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureLookup, Err: err, UserID: userID}
	}

	stored, ok, err := deps.GetRefreshToken(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureUnknownSubject, Err: err, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureLookup, Err: err, UserID: userID}
	}
	if !ok {
		return RefreshResult{Failure: RefreshFailureRevoked, UserID: userID}
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		result := RefreshResult{Failure: RefreshFailureRevoked, UserID: userID, Reused: true}
		if deps.RevokeOnReuse && deps.ClearRefreshToken != nil {
			if err := deps.ClearRefreshToken(ctx, identity.ID); err != nil {
				deps.Warn("authcore: revoke on refresh reuse failed", "user_id", userID, "error", err)
			} else {
				result.Revoked = true
			}
		}
		return result
	}

	pair, err := deps.IssuePair(SubjectOf(identity))
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSign, Err: err, UserID: userID}
	}

	if err := deps.RotateRefreshToken(ctx, identity.ID, presented, pair.RefreshToken); err != nil {
		switch {
		case errors.Is(err, account.ErrTokenMismatch):
			return RefreshResult{Failure: RefreshFailureRevoked, Err: err, UserID: userID}
		case errors.Is(err, account.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureUnknownSubject, Err: err, UserID: userID}
		default:
			return RefreshResult{Failure: RefreshFailurePersist, Err: err, UserID: userID}
		}
	}

	return RefreshResult{UserID: userID, Pair: pair}
}
