package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/account"
)

// UserIdentity is the durable user record. It carries the password hash and
// the stored refresh token and must never be serialized to clients; use
// [PublicUserFrom] for that.
type UserIdentity = account.Identity

// UserStore is the credential and session persistence contract the Engine
// consumes. [redisstore.Store] and [sqlstore.Store] implement it.
type UserStore = account.Store

// ProfilePatch carries a partial profile update. Nil fields are left as-is.
type ProfilePatch = account.ProfilePatch

// PasswordHasher is the opaque password capability. Verify must compare in
// constant time and return (false, nil) on mismatch.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// PublicUser is the client-safe view of a [UserIdentity].
type PublicUser struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar,omitempty"`
	CoverImage string    `json:"coverImage,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PublicUserFrom strips the password hash and refresh token from id.
func PublicUserFrom(id UserIdentity) PublicUser {
	return PublicUser{
		ID:         id.ID,
		Username:   id.Username,
		Email:      id.Email,
		FullName:   id.Profile.FullName,
		Avatar:     id.Profile.Avatar,
		CoverImage: id.Profile.CoverImage,
		CreatedAt:  id.CreatedAt,
		UpdatedAt:  id.UpdatedAt,
	}
}

// TokenPair is a freshly issued access/refresh pair. It is never persisted
// as an object; only RefreshToken is stored.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// LoginRequest identifies a user by username or email. Either identifier
// suffices; Password is always required.
type LoginRequest struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	User   PublicUser
	Tokens TokenPair
}

// RefreshRequest carries the refresh token from its two possible sources.
// CookieToken wins when both are present.
type RefreshRequest struct {
	CookieToken string
	BodyToken   string
}

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Avatar     string
	CoverImage string
}

// AuthResult is returned by [Engine.Validate] for a verified access token.
type AuthResult struct {
	UserID    string
	Username  string
	Email     string
	ExpiresAt time.Time
}
