package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/account"
)

// RegisterFailureKind classifies registration failures.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureMissingField
	RegisterFailureDuplicate
	RegisterFailureHash
	RegisterFailureStore
)

// RegisterInput is the flow-local registration request.
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Avatar     string
	CoverImage string
}

// RegisterResult carries the created identity or failure metadata.
type RegisterResult struct {
	Failure  RegisterFailureKind
	Err      error
	Identity account.Identity
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	HashPassword func(plaintext string) (string, error)
	Create       func(ctx context.Context, identity account.Identity) (account.Identity, error)
}

// RunRegister validates in, hashes the password and creates the identity.
// Usernames and emails are stored lower-cased.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) RegisterResult {
	username := account.NormalizeIdentifier(in.Username)
	email := account.NormalizeIdentifier(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return RegisterResult{Failure: RegisterFailureMissingField}
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	created, err := deps.Create(ctx, account.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Profile: account.Profile{
			FullName:   fullName,
			Avatar:     strings.TrimSpace(in.Avatar),
			CoverImage: strings.TrimSpace(in.CoverImage),
		},
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}

	return RegisterResult{Identity: created}
}
