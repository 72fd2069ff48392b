// Package account defines the durable user record shared by the engine and
// its storage backends, together with the store contract both Redis and SQL
// implementations satisfy.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no identity matches the lookup.
	ErrNotFound = errors.New("account: identity not found")
	// ErrDuplicate is returned by Create when the username or email is taken.
	ErrDuplicate = errors.New("account: username or email already registered")
	// ErrTokenMismatch is returned by RotateRefreshToken when the stored token
	// no longer equals the presented one.
	ErrTokenMismatch = errors.New("account: refresh token mismatch")
	// ErrUnavailable wraps backend failures (network, driver, script errors).
	ErrUnavailable = errors.New("account: store unavailable")
)

// Profile holds the descriptive fields of an identity. Token operations never
// touch these.
type Profile struct {
	FullName   string `json:"fullName"`
	Avatar     string `json:"avatar,omitempty"`
	CoverImage string `json:"coverImage,omitempty"`
}

// Identity is the durable user record. RefreshToken is empty when no session
// is active.
type Identity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	RefreshToken string
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfilePatch carries a partial profile update. Nil fields are left as-is.
type ProfilePatch struct {
	FullName   *string
	Email      *string
	Avatar     *string
	CoverImage *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.FullName == nil && p.Email == nil && p.Avatar == nil && p.CoverImage == nil
}

// Apply returns a copy of id with the patch applied. Email is normalized.
func (p ProfilePatch) Apply(id Identity) Identity {
	if p.FullName != nil {
		id.Profile.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.Email != nil {
		id.Email = NormalizeIdentifier(*p.Email)
	}
	if p.Avatar != nil {
		id.Profile.Avatar = *p.Avatar
	}
	if p.CoverImage != nil {
		id.Profile.CoverImage = *p.CoverImage
	}
	return id
}

// NormalizeIdentifier trims and lower-cases a username or email so lookups
// and uniqueness checks are case-insensitive.
func NormalizeIdentifier(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Store is the credential and session persistence contract.
//
// Every refresh-token method is a narrow field update: it never re-validates
// or rewrites other fields of the record.
type Store interface {
	// FindByUsernameOrEmail returns the identity whose username equals
	// username or whose email equals email. A username match wins when both
	// are supplied. Empty arguments are ignored.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	// Create stores a new identity. ID, CreatedAt and UpdatedAt are assigned
	// by the store when empty.
	Create(ctx context.Context, id Identity) (Identity, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Identity, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	SetRefreshToken(ctx context.Context, id, token string) error
	GetRefreshToken(ctx context.Context, id string) (string, bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
	// RotateRefreshToken replaces presented with next as one atomic
	// conditional update. It returns ErrTokenMismatch when the stored value
	// differs from presented (including when it is absent).
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
}
