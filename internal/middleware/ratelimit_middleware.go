package middleware

import (
	"context"

	"github.com/GTDGit/gtd_auth/internal/auth"
)

// InvalidAuthRateLimiter counts failed bearer authentications per client IP.
// Counters live in the shared cache, so the budget holds across instances.
type InvalidAuthRateLimiter struct {
	limiter *auth.RateLimiter
}

// NewInvalidAuthRateLimiter wraps limiter, which must carry a rule for
// auth.RateInvalidAuth.
func NewInvalidAuthRateLimiter(limiter *auth.RateLimiter) *InvalidAuthRateLimiter {
	return &InvalidAuthRateLimiter{limiter: limiter}
}

// Allow records one failed attempt from ip. It returns a
// *utils.RateLimitedError once the budget is spent.
func (r *InvalidAuthRateLimiter) Allow(ctx context.Context, ip string) error {
	return r.limiter.Allow(ctx, auth.RateInvalidAuth, ip)
}
