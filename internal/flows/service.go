package flows

import (
	"context"

	"github.com/MrEthical07/authcore/account"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil &&
		s.deps.Refresh.ParseRefresh != nil &&
		s.deps.Credentials.FindByUsernameOrEmail != nil
}

func (s Service) VerifyCredentials(ctx context.Context, username, email, password string) CredentialResult {
	return RunVerifyCredentials(ctx, username, email, password, s.deps.Credentials)
}

func (s Service) Issue(ctx context.Context, identity account.Identity) IssueResult {
	return RunIssue(ctx, identity, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, cookieToken, bodyToken string) RefreshResult {
	return RunRefresh(ctx, cookieToken, bodyToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, identityID string) LogoutResult {
	return RunLogout(ctx, identityID, s.deps.Logout)
}

func (s Service) Register(ctx context.Context, in RegisterInput) RegisterResult {
	return RunRegister(ctx, in, s.deps.Register)
}

func (s Service) Validate(tokenStr string) ValidateResult {
	return RunValidate(tokenStr, s.deps.Validate)
}
