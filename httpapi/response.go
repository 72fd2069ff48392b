package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/authcore"
)

// Envelope is the JSON body of every successful response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorEnvelope is the JSON body of every failed response.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
}

func respond(c *gin.Context, status int, data any, message string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		StatusCode: status,
		Message:    messageFor(err),
		Success:    false,
		Error:      authcore.ErrorKind(err),
	})
}

// statusFor maps the engine error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, authcore.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrMissingToken),
		errors.Is(err, authcore.ErrSignatureInvalid),
		errors.Is(err, authcore.ErrExpired),
		errors.Is(err, authcore.ErrUnknownSubject),
		errors.Is(err, authcore.ErrSessionRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, authcore.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, authcore.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, authcore.ErrLoginRateLimited), errors.Is(err, errTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, authcore.ErrMissingField):
		return "All fields are required"
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return "Invalid user credentials"
	case errors.Is(err, authcore.ErrMissingToken):
		return "Unauthorized request"
	case errors.Is(err, authcore.ErrExpired):
		return "Refresh token is expired or used"
	case errors.Is(err, authcore.ErrSessionRevoked):
		return "Refresh token is expired or used"
	case errors.Is(err, authcore.ErrSignatureInvalid), errors.Is(err, authcore.ErrUnknownSubject):
		return "Invalid token"
	case errors.Is(err, authcore.ErrAccountExists):
		return "User already exists"
	case errors.Is(err, authcore.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, authcore.ErrLoginRateLimited), errors.Is(err, errTooManyRequests):
		return "Too many requests"
	case errors.Is(err, authcore.ErrEngineNotReady):
		return "Service unavailable"
	default:
		return "Something went wrong"
	}
}
