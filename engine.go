package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/authcore/account"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
)

// Engine runs the session lifecycle: login, refresh rotation, logout,
// registration and access validation. An Engine is safe for concurrent use.
type Engine struct {
	config      Config
	store       UserStore
	hasher      PasswordHasher
	jwtManager  *jwt.Manager
	rateLimiter *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	flows       flows.Service
	now         func() time.Time
	closed      atomic.Bool
}

// Close stops the audit dispatcher, delivering queued events until ctx is
// done. Every operation returns [ErrEngineNotReady] afterwards.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.closed.Store(true)
	return e.audit.Close(ctx)
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CookieConfig returns the cookie attributes transports should use.
func (e *Engine) CookieConfig() CookieConfig {
	if e == nil {
		return defaultConfig().Cookie
	}
	return e.config.Cookie
}

// AccessTTL returns the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration {
	if e == nil {
		return defaultConfig().JWT.AccessTTL
	}
	return e.config.JWT.AccessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	if e == nil {
		return defaultConfig().JWT.RefreshTTL
	}
	return e.config.JWT.RefreshTTL
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load() && e.flows.Initialized()
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}

// Login verifies the credentials in req and issues a new token pair whose
// refresh token replaces any previously stored one.
//
// Unknown identifiers and wrong passwords both return
// [ErrInvalidCredentials]; the distinction is only logged and audited. When
// the refresh token cannot be stored, Login returns
// [ErrTokenPersistenceFailed] and no tokens.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (result LoginResult, err error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "authcore.Login")
	defer func() { endSpan(span, err) }()
	defer e.observeLatency(MetricLoginLatency, time.Now())

	identifier := account.NormalizeIdentifier(req.Username)
	if identifier == "" {
		identifier = account.NormalizeIdentifier(req.Email)
	}
	throttleKeys := loginThrottleKeys(req.Username, req.Email)
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil && len(throttleKeys) > 0 {
		if err := e.rateLimiter.CheckLogin(ctx, ip, throttleKeys...); err != nil {
			if !errors.Is(err, rate.ErrRateLimited) {
				e.logger.ErrorContext(ctx, "authcore: login throttle check failed", "error", err)
			}
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			return LoginResult{}, ErrLoginRateLimited
		}
	}

	verified := e.flows.VerifyCredentials(ctx, req.Username, req.Email, req.Password)
	switch verified.Failure {
	case flows.CredentialFailureNone:
	case flows.CredentialFailureMissingField:
		e.metricInc(MetricLoginFailure)
		return LoginResult{}, ErrMissingField
	case flows.CredentialFailureNotRegistered, flows.CredentialFailurePasswordMismatch:
		internalErr := ErrPasswordMismatch
		reason := "password_mismatch"
		if verified.Failure == flows.CredentialFailureNotRegistered {
			internalErr = ErrNotRegistered
			reason = "not_registered"
		}
		e.recordLoginFailure(ctx, ip, append(throttleKeys, verified.Identity.Username, verified.Identity.Email))
		e.logger.InfoContext(ctx, "authcore: login rejected",
			"reason", reason,
			"identifier", identifier,
			"user_id", verified.Identity.ID,
		)
		if verified.Err != nil && verified.Failure == flows.CredentialFailurePasswordMismatch {
			e.logger.WarnContext(ctx, "authcore: stored password hash unreadable", "user_id", verified.Identity.ID, "error", verified.Err)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, verified.Identity.ID, internalErr, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     reason,
			}
		})
		return LoginResult{}, ErrInvalidCredentials
	default:
		e.logger.ErrorContext(ctx, "authcore: credential lookup failed", "error", verified.Err)
		e.metricInc(MetricLoginFailure)
		return LoginResult{}, ErrStoreUnavailable
	}

	identity := verified.Identity
	span.SetAttributes(attribute.String("authcore.user_id", identity.ID))
	if verified.Upgraded {
		e.metricInc(MetricPasswordUpgraded)
		e.emitAudit(ctx, auditEventPasswordUpgraded, true, identity.ID, nil, nil)
	}

	issued := e.flows.Issue(ctx, identity)
	switch issued.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailurePersist:
		e.logger.ErrorContext(ctx, "authcore: refresh token persistence failed", "user_id", identity.ID, "error", issued.Err)
		e.metricInc(MetricTokenPersistenceFailure)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventTokenPersistence, false, identity.ID, ErrTokenPersistenceFailed, func() map[string]string {
			return map[string]string{"operation": "login"}
		})
		return LoginResult{}, ErrTokenPersistenceFailed
	default:
		e.logger.ErrorContext(ctx, "authcore: token signing failed", "user_id", identity.ID, "error", issued.Err)
		e.metricInc(MetricLoginFailure)
		return LoginResult{}, fmt.Errorf("authcore: sign tokens: %w", issued.Err)
	}

	if e.rateLimiter != nil {
		keys := loginThrottleKeys(identity.Username, identity.Email)
		if err := e.rateLimiter.ResetLogin(ctx, ip, append(keys, throttleKeys...)...); err != nil {
			e.logger.WarnContext(ctx, "authcore: login throttle reset failed", "error", err)
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.ID, nil, nil)

	return LoginResult{
		User:   PublicUserFrom(identity),
		Tokens: tokenPairFrom(issued.Pair),
	}, nil
}

// loginThrottleKeys returns the distinct normalized identifiers a login
// attempt is charged against.
func loginThrottleKeys(identifiers ...string) []string {
	keys := make([]string, 0, len(identifiers))
	for _, v := range identifiers {
		v = account.NormalizeIdentifier(v)
		if v != "" && !slices.Contains(keys, v) {
			keys = append(keys, v)
		}
	}
	return keys
}

// recordLoginFailure charges a failed attempt to every supplied identifier
// and, when the account was found, to its username and email as well.
func (e *Engine) recordLoginFailure(ctx context.Context, ip string, identifiers []string) {
	if e.rateLimiter == nil {
		return
	}
	keys := loginThrottleKeys(identifiers...)
	if len(keys) == 0 {
		return
	}
	if err := e.rateLimiter.IncrementLogin(ctx, ip, keys...); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.WarnContext(ctx, "authcore: login throttle increment failed", "error", err)
	}
}

// Refresh runs the rotation protocol. The cookie token is preferred over the
// body token. On success the presented token is permanently superseded.
//
// Failures before the final compare-and-set never touch the store. A
// concurrent refresh with the same token that loses the race returns
// [ErrSessionRevoked].
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) (pair TokenPair, err error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "authcore.Refresh")
	defer func() { endSpan(span, err) }()
	defer e.observeLatency(MetricRefreshLatency, time.Now())

	res := e.flows.Refresh(ctx, req.CookieToken, req.BodyToken)
	if res.UserID != "" {
		span.SetAttributes(attribute.String("authcore.user_id", res.UserID))
	}

	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, nil, nil)
		return tokenPairFrom(res.Pair), nil
	}

	e.metricInc(MetricRefreshFailure)
	var outErr error
	switch res.Failure {
	case flows.RefreshFailureMissingToken:
		outErr = ErrMissingToken
	case flows.RefreshFailureInvalid:
		outErr = ErrSignatureInvalid
	case flows.RefreshFailureExpired:
		outErr = ErrExpired
	case flows.RefreshFailureUnknownSubject:
		outErr = ErrUnknownSubject
	case flows.RefreshFailureRevoked:
		outErr = ErrSessionRevoked
		if res.Reused {
			e.metricInc(MetricRefreshReuseDetected)
			e.logger.WarnContext(ctx, "authcore: superseded refresh token presented",
				"user_id", res.UserID,
				"revoked", res.Revoked,
			)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, ErrSessionRevoked, func() map[string]string {
				if res.Revoked {
					return map[string]string{"action": "revoked"}
				}
				return nil
			})
			return TokenPair{}, outErr
		}
	case flows.RefreshFailurePersist:
		e.logger.ErrorContext(ctx, "authcore: refresh token rotation failed", "user_id", res.UserID, "error", res.Err)
		e.metricInc(MetricTokenPersistenceFailure)
		e.emitAudit(ctx, auditEventTokenPersistence, false, res.UserID, ErrTokenPersistenceFailed, func() map[string]string {
			return map[string]string{"operation": "refresh"}
		})
		return TokenPair{}, ErrTokenPersistenceFailed
	case flows.RefreshFailureLookup:
		e.logger.ErrorContext(ctx, "authcore: refresh lookup failed", "user_id", res.UserID, "error", res.Err)
		outErr = ErrStoreUnavailable
	default:
		e.logger.ErrorContext(ctx, "authcore: token signing failed", "user_id", res.UserID, "error", res.Err)
		outErr = fmt.Errorf("authcore: sign tokens: %w", res.Err)
	}

	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, outErr, nil)
	return TokenPair{}, outErr
}

// RefreshToken is Refresh with the token supplied as an explicit field.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	return e.Refresh(ctx, RefreshRequest{BodyToken: refreshToken})
}

// Logout clears the stored refresh token of userID. It is idempotent and
// also succeeds for identities that no longer exist.
//
// The caller must have authenticated userID for this request, typically via
// [Engine.Validate].
func (e *Engine) Logout(ctx context.Context, userID string) (err error) {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "authcore.Logout")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("authcore.user_id", userID))

	res := e.flows.Logout(ctx, userID)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureMissingIdentity:
		return ErrMissingField
	default:
		e.logger.ErrorContext(ctx, "authcore: logout failed", "user_id", userID, "error", res.Err)
		return ErrStoreUnavailable
	}

	if res.UnknownIdentity {
		e.logger.InfoContext(ctx, "authcore: logout for unknown identity", "user_id", userID)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, nil, nil)
	return nil
}

// Register creates a new identity. Username, email, full name and password
// are required; a taken username or email returns [ErrAccountExists]. No
// tokens are issued.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (user PublicUser, err error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "authcore.Register")
	defer func() { endSpan(span, err) }()

	res := e.flows.Register(ctx, flows.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		Avatar:     req.Avatar,
		CoverImage: req.CoverImage,
	})

	switch res.Failure {
	case flows.RegisterFailureNone:
		span.SetAttributes(attribute.String("authcore.user_id", res.Identity.ID))
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventRegisterSuccess, true, res.Identity.ID, nil, nil)
		return PublicUserFrom(res.Identity), nil
	case flows.RegisterFailureMissingField:
		err = ErrMissingField
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricRegisterDuplicate)
		err = ErrAccountExists
	case flows.RegisterFailureHash:
		e.logger.ErrorContext(ctx, "authcore: password hashing failed", "error", res.Err)
		err = fmt.Errorf("authcore: hash password: %w", res.Err)
	default:
		e.logger.ErrorContext(ctx, "authcore: create identity failed", "error", res.Err)
		err = ErrStoreUnavailable
	}

	e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, func() map[string]string {
		return map[string]string{
			"username": account.NormalizeIdentifier(req.Username),
		}
	})
	return PublicUser{}, err
}

// Validate verifies the signature and expiry of an access token. It never
// touches the store.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Validate(accessToken)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureMissingToken:
		e.metricInc(MetricValidateFailure)
		return nil, ErrMissingToken
	case flows.ValidateFailureExpired:
		e.metricInc(MetricValidateFailure)
		return nil, ErrExpired
	default:
		e.metricInc(MetricValidateFailure)
		return nil, ErrSignatureInvalid
	}

	e.metricInc(MetricValidateSuccess)
	result := &AuthResult{
		UserID:   res.Claims.Subject,
		Username: res.Claims.Username,
		Email:    res.Claims.Email,
	}
	if res.Claims.ExpiresAt != nil {
		result.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return result, nil
}

// CurrentUser returns the sanitized identity of userID.
func (e *Engine) CurrentUser(ctx context.Context, userID string) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return PublicUser{}, ErrMissingField
	}

	identity, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return PublicUser{}, e.mapProfileError(ctx, userID, err)
	}
	return PublicUserFrom(identity), nil
}

// UpdateProfile applies patch to the profile of userID. The password hash
// and refresh token are never modified. Blank full names or emails return
// [ErrMissingField]; an email owned by another identity returns
// [ErrAccountExists].
func (e *Engine) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (user PublicUser, err error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" || patch.Empty() {
		return PublicUser{}, ErrMissingField
	}
	if patch.FullName != nil && strings.TrimSpace(*patch.FullName) == "" {
		return PublicUser{}, ErrMissingField
	}
	if patch.Email != nil && account.NormalizeIdentifier(*patch.Email) == "" {
		return PublicUser{}, ErrMissingField
	}

	ctx, span := e.startSpan(ctx, "authcore.UpdateProfile")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("authcore.user_id", userID))

	identity, err := e.store.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return PublicUser{}, e.mapProfileError(ctx, userID, err)
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, userID, nil, nil)
	return PublicUserFrom(identity), nil
}

func (e *Engine) mapProfileError(ctx context.Context, userID string, err error) error {
	switch {
	case errors.Is(err, account.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, account.ErrDuplicate):
		return ErrAccountExists
	default:
		e.logger.ErrorContext(ctx, "authcore: profile store failed", "user_id", userID, "error", err)
		return ErrStoreUnavailable
	}
}

func tokenPairFrom(p jwt.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}
