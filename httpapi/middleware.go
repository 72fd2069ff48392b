package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

// ClientContext copies the client IP and User-Agent into the request context
// so the engine can attach them to audit events and the login throttle.
func ClientContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := authcore.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = authcore.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// RequireAccess aborts with 401 unless the request carries a valid access
// token. The validated claims are stored on the request context.
func RequireAccess(engine *authcore.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := middleware.Authenticate(engine, c.Request)
		if err != nil {
			fail(c, err)
			return
		}
		c.Request = c.Request.WithContext(middleware.WithAuthResult(c.Request.Context(), res))
		c.Next()
	}
}

func authResult(c *gin.Context) (*authcore.AuthResult, bool) {
	return middleware.AuthResultFromContext(c.Request.Context())
}
