package utils

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HandleError maps a service error onto the response envelope. Failures of
// the database or cache, and unexpected errors, are logged with the request
// id and reported without internal detail.
func HandleError(c *gin.Context, err error) {
	var (
		weak    *WeakPasswordError
		limited *RateLimitedError
	)

	switch {
	case errors.As(err, &weak):
		Error(c, http.StatusUnprocessableEntity, "WEAK_PASSWORD", "Password does not meet policy", weak.Reasons...)
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		Error(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests, try again later")
	case errors.Is(err, ErrInvalidInput):
		Error(c, http.StatusBadRequest, "INVALID_INPUT", "Invalid request")
	case errors.Is(err, ErrDuplicateIdentity):
		Error(c, http.StatusConflict, "DUPLICATE_IDENTITY", "Username or email already registered")
	case errors.Is(err, ErrInvalidCredentials):
		Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, ErrTokenExpired):
		Error(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
	case errors.Is(err, ErrTokenRevoked):
		Error(c, http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked")
	case errors.Is(err, ErrTokenMalformed):
		Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
	case errors.Is(err, ErrForbidden):
		Error(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
	case errors.Is(err, ErrAlreadyAdmin):
		Error(c, http.StatusConflict, "ALREADY_ADMIN", "User is already an admin")
	case errors.Is(err, ErrNotFound):
		Error(c, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, ErrRotationIncomplete):
		log.Error().Err(err).Str("request_id", RequestID(c)).Msg("Token rotation incomplete")
		Error(c, http.StatusServiceUnavailable, "ROTATION_INCOMPLETE", "Please log in again")
	case errors.Is(err, ErrUnavailable):
		log.Error().Err(err).Str("request_id", RequestID(c)).Msg("Dependency unavailable")
		Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
	default:
		log.Error().Err(err).Str("request_id", RequestID(c)).Msg("Unhandled error")
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
