package utils_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_auth/internal/utils"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"weak password", &utils.WeakPasswordError{Reasons: []string{"too short"}}, 422, "WEAK_PASSWORD"},
		{"rate limited", &utils.RateLimitedError{Action: "login", RetryAfter: 1500 * time.Millisecond}, 429, "TOO_MANY_REQUESTS"},
		{"invalid input", utils.ErrInvalidInput, 400, "INVALID_INPUT"},
		{"duplicate", fmt.Errorf("create: %w", utils.ErrDuplicateIdentity), 409, "DUPLICATE_IDENTITY"},
		{"credentials", utils.ErrInvalidCredentials, 401, "INVALID_CREDENTIALS"},
		{"expired", utils.ErrTokenExpired, 401, "TOKEN_EXPIRED"},
		{"revoked", utils.ErrTokenRevoked, 401, "TOKEN_REVOKED"},
		{"malformed", utils.ErrTokenMalformed, 401, "INVALID_TOKEN"},
		{"bad signature", utils.ErrTokenSignatureInvalid, 401, "INVALID_TOKEN"},
		{"forbidden", utils.ErrForbidden, 403, "FORBIDDEN"},
		{"already admin", utils.ErrAlreadyAdmin, 409, "ALREADY_ADMIN"},
		{"not found", utils.ErrNotFound, 404, "NOT_FOUND"},
		{"rotation", utils.ErrRotationIncomplete, 503, "ROTATION_INCOMPLETE"},
		{"unavailable", utils.Unavailable("get user", errors.New("dial tcp: refused")), 503, "SERVICE_UNAVAILABLE"},
		{"unknown", errors.New("boom"), 500, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			utils.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var res utils.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestHandleErrorRetryAfterRoundsUp(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	utils.HandleError(c, &utils.RateLimitedError{Action: "login", RetryAfter: 1500 * time.Millisecond})

	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}
