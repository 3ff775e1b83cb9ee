package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common application errors used across services.
var (
	ErrWeakPassword       = errors.New("WEAK_PASSWORD")
	ErrDuplicateIdentity  = errors.New("DUPLICATE_IDENTITY")
	ErrInvalidCredentials = errors.New("INVALID_CREDENTIALS")
	ErrRateLimited        = errors.New("RATE_LIMITED")
	ErrTokenMalformed     = errors.New("TOKEN_MALFORMED")
	ErrTokenExpired       = errors.New("TOKEN_EXPIRED")
	ErrTokenRevoked       = errors.New("TOKEN_REVOKED")
	ErrForbidden          = errors.New("FORBIDDEN")
	ErrAlreadyAdmin       = errors.New("ALREADY_ADMIN")
	ErrNotFound           = errors.New("NOT_FOUND")
	ErrRotationIncomplete = errors.New("ROTATION_INCOMPLETE")
	ErrUnavailable        = errors.New("UNAVAILABLE")
	ErrInvalidInput       = errors.New("INVALID_INPUT")
)

// ErrTokenSignatureInvalid is reported when the token parses but its signature
// does not match. It also matches ErrTokenMalformed.
var ErrTokenSignatureInvalid = fmt.Errorf("%w: signature invalid", ErrTokenMalformed)

// WeakPasswordError lists every policy rule a password failed.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Reasons, "; ")
}

func (e *WeakPasswordError) Is(target error) bool { return target == ErrWeakPassword }

// RateLimitedError carries the time left in the current window.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Action, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// UnavailableError wraps a failure of the database or cache.
type UnavailableError struct {
	Op  string
	Err error
}

// Unavailable wraps err as an infrastructure failure of op. A nil err stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
