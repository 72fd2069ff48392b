package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the claims stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

// WithAuthResult stores res in ctx.
func WithAuthResult(ctx context.Context, res *authcore.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// AccessToken extracts the access token from the cookie named cookieName or,
// failing that, from the Authorization header.
func AccessToken(r *http.Request, cookieName string) (string, bool) {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// Authenticate validates the access token carried by r.
func Authenticate(engine *authcore.Engine, r *http.Request) (*authcore.AuthResult, error) {
	if engine == nil {
		return nil, authcore.ErrEngineNotReady
	}

	token, ok := AccessToken(r, engine.CookieConfig().AccessName)
	if !ok {
		return nil, authcore.ErrMissingToken
	}

	return engine.Validate(r.Context(), token)
}

// Guard wraps next so it only runs for requests carrying a valid access
// token. Rejected requests get 401.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := Authenticate(engine, r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
