package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/authcore"
)

// Handler serves the user session routes.
type Handler struct {
	engine  *authcore.Engine
	logger  *slog.Logger
	limiter *IPRateLimiter
}

// Option customises a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithIPRateLimiter throttles the unauthenticated routes per client IP.
func WithIPRateLimiter(l *IPRateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// New creates a Handler for engine.
func New(engine *authcore.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type registerBody struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"fullName"`
	Avatar     string `json:"avatar"`
	CoverImage string `json:"coverImage"`
}

type loginBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type profileBody struct {
	FullName   *string `json:"fullName"`
	Email      *string `json:"email"`
	Avatar     *string `json:"avatar"`
	CoverImage *string `json:"coverImage"`
}

type loginData struct {
	User         authcore.PublicUser `json:"user"`
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken"`
}

// Register mounts the routes on r under /api/v1/users.
func (h *Handler) Register(r gin.IRouter) {
	users := r.Group("/api/v1/users")
	users.Use(ClientContext())

	public := users.Group("")
	if h.limiter != nil {
		public.Use(h.limiter.Middleware())
	}
	public.POST("/register", h.register)
	public.POST("/login", h.login)
	public.POST("/refresh-token", h.refresh)

	secured := users.Group("")
	secured.Use(RequireAccess(h.engine))
	secured.POST("/logout", h.logout)
	secured.GET("/me", h.me)
	secured.PATCH("/me", h.updateMe)
}

// Router builds a gin engine with recovery, request logging and the user
// routes mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))
	h.Register(r)
	return r
}

func (h *Handler) register(c *gin.Context) {
	var body registerBody
	if !bindJSON(c, &body) {
		return
	}

	user, err := h.engine.Register(c.Request.Context(), authcore.RegisterRequest{
		Username:   body.Username,
		Email:      body.Email,
		Password:   body.Password,
		FullName:   body.FullName,
		Avatar:     body.Avatar,
		CoverImage: body.CoverImage,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusCreated, user, "User registered successfully")
}

func (h *Handler) login(c *gin.Context) {
	var body loginBody
	if !bindJSON(c, &body) {
		return
	}

	res, err := h.engine.Login(c.Request.Context(), authcore.LoginRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	setTokenCookies(c, h.engine.CookieConfig(), res.Tokens, h.engine.AccessTTL(), h.engine.RefreshTTL())
	respond(c, http.StatusOK, loginData{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, "User login success")
}

func (h *Handler) refresh(c *gin.Context) {
	var body refreshBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, authcore.ErrMissingToken)
		return
	}

	cfg := h.engine.CookieConfig()
	cookie, _ := c.Cookie(cfg.RefreshName)

	pair, err := h.engine.Refresh(c.Request.Context(), authcore.RefreshRequest{
		CookieToken: cookie,
		BodyToken:   body.RefreshToken,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	setTokenCookies(c, cfg, pair, h.engine.AccessTTL(), h.engine.RefreshTTL())
	respond(c, http.StatusOK, pair, "Access token refreshed")
}

func (h *Handler) logout(c *gin.Context) {
	res, _ := authResult(c)
	if err := h.engine.Logout(c.Request.Context(), res.UserID); err != nil {
		h.fail(c, err)
		return
	}

	clearTokenCookies(c, h.engine.CookieConfig())
	respond(c, http.StatusOK, nil, "User logged out")
}

func (h *Handler) me(c *gin.Context) {
	res, _ := authResult(c)
	user, err := h.engine.CurrentUser(c.Request.Context(), res.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, user, "Current user fetched successfully")
}

func (h *Handler) updateMe(c *gin.Context) {
	var body profileBody
	if !bindJSON(c, &body) {
		return
	}

	res, _ := authResult(c)
	user, err := h.engine.UpdateProfile(c.Request.Context(), res.UserID, authcore.ProfilePatch{
		FullName:   body.FullName,
		Email:      body.Email,
		Avatar:     body.Avatar,
		CoverImage: body.CoverImage,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, user, "Account details updated successfully")
}

func (h *Handler) fail(c *gin.Context, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}
	fail(c, err)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, authcore.ErrMissingField)
		return false
	}
	return true
}
