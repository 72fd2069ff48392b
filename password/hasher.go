package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password: empty password")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnsupportedHash is returned for hash formats this package does not know.
	ErrUnsupportedHash = errors.New("password: unsupported hash format")
	// ErrWeakConfig is returned by NewArgon2 and New for parameters below
	// the package minimums.
	ErrWeakConfig = errors.New("password: config below minimum cost")
)

// Hasher creates Argon2id hashes and verifies both Argon2id and bcrypt
// hashes, dispatching on the stored hash prefix.
type Hasher struct {
	argon *Argon2
}

// New returns a Hasher that produces hashes with cfg.
func New(cfg Config) (*Hasher, error) {
	argon, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: argon}, nil
}

// Hash returns a new Argon2id hash.
func (h *Hasher) Hash(plaintext string) (string, error) {
	return h.argon.Hash(plaintext)
}

// Verify reports whether plaintext matches encodedHash. A mismatch is
// (false, nil); an unreadable hash is an error.
func (h *Hasher) Verify(plaintext, encodedHash string) (bool, error) {
	switch {
	case isArgon2Hash(encodedHash):
		return h.argon.Verify(plaintext, encodedHash)
	case isBcryptHash(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plaintext))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, ErrMalformedHash
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade reports whether encodedHash should be replaced by a fresh
// Argon2id hash after a successful verify.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		return true, nil
	}
	return h.argon.NeedsUpgrade(encodedHash)
}

// HashBcrypt produces a bcrypt hash. Only used to seed or migrate legacy
// records.
func HashBcrypt(plaintext string, cost int) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isBcryptHash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
