package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/authcore"
)

// setTokenCookies writes both tokens as HttpOnly cookies with lifetimes
// matching the token TTLs.
func setTokenCookies(c *gin.Context, cfg authcore.CookieConfig, pair authcore.TokenPair, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(c.Writer, tokenCookie(cfg, cfg.AccessName, pair.AccessToken, int(accessTTL.Seconds())))
	http.SetCookie(c.Writer, tokenCookie(cfg, cfg.RefreshName, pair.RefreshToken, int(refreshTTL.Seconds())))
}

// clearTokenCookies expires both cookies on the client.
func clearTokenCookies(c *gin.Context, cfg authcore.CookieConfig) {
	http.SetCookie(c.Writer, tokenCookie(cfg, cfg.AccessName, "", -1))
	http.SetCookie(c.Writer, tokenCookie(cfg, cfg.RefreshName, "", -1))
}

func tokenCookie(cfg authcore.CookieConfig, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: cfg.SameSite,
	}
}
