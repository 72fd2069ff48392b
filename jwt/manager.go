package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeAccess marks access tokens in the "typ" claim.
	TypeAccess = "access"
	// TypeRefresh marks refresh tokens in the "typ" claim.
	TypeRefresh = "refresh"

	minSecretLen = 32
)

var (
	// ErrExpired is returned when a well-signed token is past its exp.
	ErrExpired = errors.New("jwt: token expired")
	// ErrInvalid is returned for every other verification failure:
	// malformed input, bad signature, wrong algorithm, issuer or type.
	ErrInvalid = errors.New("jwt: token invalid")
)

// Config defines the signing material and lifetimes for both token kinds.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
// Leeway tolerates clock skew on access-token expiry only; refresh tokens are
// rejected the instant they expire.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration

	// Now overrides the clock used for issuance and verification.
	Now func() time.Time
}

// Manager issues and verifies HS256 access and refresh tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Subject carries the identity attributes embedded in issued tokens.
type Subject struct {
	ID       string
	Username string
	Email    string
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Type     string `json:"typ"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. It deliberately carries
// nothing but the subject and registered claims.
type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is a freshly signed access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// NewManager validates cfg and returns a Manager.
//
// NewManager may return an error when the secrets are missing, too short or
// identical, or when the lifetimes are inconsistent.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be longer than access TTL")
	}
	if len(cfg.AccessSecret) < minSecretLen || len(cfg.RefreshSecret) < minSecretLen {
		return nil, fmt.Errorf("signing secrets must be at least %d bytes", minSecretLen)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// IssuePair signs a new access and refresh token for sub. Each token gets a
// fresh jti so two pairs minted within the same second still differ.
//
// IssuePair is pure: it does not persist anything.
func (j *Manager) IssuePair(sub Subject) (Pair, error) {
	if sub.ID == "" {
		return Pair{}, errors.New("subject id is required")
	}

	now := j.now()
	accessExp := now.Add(j.config.AccessTTL)
	refreshExp := now.Add(j.config.RefreshTTL)

	access := AccessClaims{
		Type:             TypeAccess,
		Username:         sub.Username,
		Email:            sub.Email,
		RegisteredClaims: j.registered(sub.ID, now, accessExp),
	}
	refresh := RefreshClaims{
		Type:             TypeRefresh,
		RegisteredClaims: j.registered(sub.ID, now, refreshExp),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(j.config.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(j.config.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (j *Manager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return claims
}

// ParseAccess verifies an access token's signature, expiry and type.
//
// ParseAccess returns ErrExpired or ErrInvalid; it never touches storage.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.config.AccessSecret, j.config.Leeway); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalid, claims.Type)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token's signature, expiry and type.
//
// ParseRefresh returns ErrExpired or ErrInvalid; it never touches storage.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.config.RefreshSecret, 0); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalid, claims.Type)
	}
	return claims, nil
}

type registeredClaimer interface {
	jwt.Claims
	registeredClaims() *jwt.RegisteredClaims
}

func (c *AccessClaims) registeredClaims() *jwt.RegisteredClaims  { return &c.RegisteredClaims }
func (c *RefreshClaims) registeredClaims() *jwt.RegisteredClaims { return &c.RegisteredClaims }

func (j *Manager) parse(tokenStr string, claims registeredClaimer, secret []byte, leeway time.Duration) error {
	if strings.TrimSpace(tokenStr) == "" {
		return fmt.Errorf("%w: empty token", ErrInvalid)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if leeway > 0 {
		options = append(options, jwt.WithLeeway(leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return ErrInvalid
	}

	rc := claims.registeredClaims()
	if rc.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	if rc.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		if rc.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
			return fmt.Errorf("%w: iat too far in the future", ErrInvalid)
		}
	}
	return nil
}

// classify folds golang-jwt's error tree into ErrExpired or ErrInvalid.
// Signature verification runs before claim validation, so a forged expired
// token reports ErrInvalid.
func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}
