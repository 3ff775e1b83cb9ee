package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// RateAction names a rate-limited flow. Each action has its own budget.
type RateAction string

const (
	RateLogin         RateAction = "login"
	RateLoginIP       RateAction = "login_ip"
	RateRegister      RateAction = "register"
	RatePasswordReset RateAction = "password_reset"
	RateRefresh       RateAction = "refresh"
	RateInvalidAuth   RateAction = "invalid_auth"
)

// Rule is a fixed-window budget: at most Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// RulesFromConfig maps configured budgets to actions.
func RulesFromConfig(cfg config.RateLimitConfig) map[RateAction]Rule {
	return map[RateAction]Rule{
		RateLogin:         Rule(cfg.Login),
		RateLoginIP:       Rule(cfg.LoginIP),
		RateRegister:      Rule(cfg.Register),
		RatePasswordReset: Rule(cfg.PasswordReset),
		RateRefresh:       Rule(cfg.Refresh),
		RateInvalidAuth:   Rule(cfg.InvalidAuth),
	}
}

// RateLimiter counts hits per key in fixed windows stored in the cache.
type RateLimiter struct {
	cache Cache
	rules map[RateAction]Rule
	now   func() time.Time
}

// NewRateLimiter creates a RateLimiter. rules is copied.
func NewRateLimiter(cache Cache, rules map[RateAction]Rule, opts ...Option) *RateLimiter {
	o := buildOptions(opts)
	copied := make(map[RateAction]Rule, len(rules))
	for k, v := range rules {
		copied[k] = v
	}
	return &RateLimiter{cache: cache, rules: copied, now: o.now}
}

// Allow counts one hit of action by identity against the action's rule.
// Actions without a rule are always allowed.
func (l *RateLimiter) Allow(ctx context.Context, action RateAction, identity string) error {
	rule, ok := l.rules[action]
	if !ok {
		return nil
	}
	return l.check(ctx, string(action), string(action)+":"+identity, rule.Window, rule.Limit)
}

// CheckAndIncrement counts one hit of key in the current window and rejects
// it with a *utils.RateLimitedError once the count exceeds limit.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) error {
	return l.check(ctx, key, key, window, limit)
}

func (l *RateLimiter) check(ctx context.Context, action, key string, window time.Duration, limit int) error {
	if limit <= 0 || window.Milliseconds() <= 0 {
		return nil
	}

	now := l.now()
	size := window.Milliseconds()
	index := now.UnixMilli() / size
	end := time.UnixMilli((index + 1) * size)
	remaining := end.Sub(now)

	count, err := l.cache.Increment(ctx, fmt.Sprintf("ratelimit:%s:%d", key, index), remaining)
	if err != nil {
		return err
	}
	if count > int64(limit) {
		return &utils.RateLimitedError{Action: action, RetryAfter: remaining}
	}
	return nil
}
