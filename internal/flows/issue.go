package flows

import (
	"context"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/jwt"
)

// IssueFailureKind classifies token issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSign
	IssueFailurePersist
)

// IssueResult carries the signed pair or failure metadata. Pair is zero on
// any failure so callers cannot hand out unpersisted tokens.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Pair    jwt.Pair
}

// IssueDeps captures login-time issuance dependencies.
type IssueDeps struct {
	IssuePair       func(jwt.Subject) (jwt.Pair, error)
	SetRefreshToken func(ctx context.Context, id, token string) error
}

// SubjectOf returns the token subject for identity.
func SubjectOf(identity account.Identity) jwt.Subject {
	return jwt.Subject{
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
	}
}

// RunIssue mints a new pair for identity and stores its refresh token,
// overwriting any prior value.
func RunIssue(ctx context.Context, identity account.Identity, deps IssueDeps) IssueResult {
	pair, err := deps.IssuePair(SubjectOf(identity))
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	if err := deps.SetRefreshToken(ctx, identity.ID, pair.RefreshToken); err != nil {
		return IssueResult{Failure: IssueFailurePersist, Err: err}
	}

	return IssueResult{Pair: pair}
}
