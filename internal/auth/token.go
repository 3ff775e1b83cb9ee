package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// TokenType distinguishes what a signed token may be used for.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenReset   TokenType = "reset"
	TokenVerify  TokenType = "verify"
)

const revokedKeyPrefix = "auth:revoked:"

// Claims is the signed payload of every token.
type Claims struct {
	Type    TokenType `json:"typ"`
	Version int       `json:"ver"`
	jwt.RegisteredClaims
}

// UserID parses the subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Pair is the result of a login or a refresh.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenService issues, verifies and revokes HS256 tokens. Revocation state
// lives in the cache with a TTL equal to the token's remaining lifetime.
type TokenService struct {
	secret []byte
	issuer string
	ttl    map[TokenType]time.Duration
	cache  Cache
	now    func() time.Time
}

// NewTokenService creates a TokenService.
func NewTokenService(cfg config.AuthConfig, cache Cache, opts ...Option) *TokenService {
	o := buildOptions(opts)
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl: map[TokenType]time.Duration{
			TokenAccess:  cfg.AccessTTL,
			TokenRefresh: cfg.RefreshTTL,
			TokenReset:   cfg.ResetTTL,
			TokenVerify:  cfg.VerifyTTL,
		},
		cache: cache,
		now:   o.now,
	}
}

// TTL returns the lifetime of tokens of type typ.
func (s *TokenService) TTL(typ TokenType) time.Duration {
	return s.ttl[typ]
}

// Issue signs a new token for userID.
func (s *TokenService) Issue(userID uuid.UUID, version int, typ TokenType) (string, *Claims, error) {
	ttl, ok := s.ttl[typ]
	if !ok || ttl <= 0 {
		return "", nil, fmt.Errorf("no lifetime configured for %q tokens", typ)
	}

	now := s.now()
	claims := &Claims{
		Type:    typ,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

// IssuePair signs an access and a refresh token.
func (s *TokenService) IssuePair(userID uuid.UUID, version int) (*Pair, error) {
	access, accessClaims, err := s.Issue(userID, version, TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.Issue(userID, version, TokenRefresh)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// Parse checks everything that can be decided from the token alone:
// structure, signature, issuer, expiry, and type.
func (s *TokenService) Parse(token string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, utils.ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, utils.ErrTokenExpired
		default:
			return nil, utils.ErrTokenMalformed
		}
	}

	if claims.Type != expected || claims.ID == "" {
		return nil, utils.ErrTokenMalformed
	}
	if _, err := claims.UserID(); err != nil {
		return nil, utils.ErrTokenMalformed
	}
	return claims, nil
}

// Verify is Parse plus the revocation lookup.
func (s *TokenService) Verify(ctx context.Context, token string, expected TokenType) (*Claims, error) {
	claims, err := s.Parse(token, expected)
	if err != nil {
		return nil, err
	}

	revoked, err := s.cache.Exists(ctx, revokedKeyPrefix+claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, utils.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke adds the token to the revocation set. Revoking twice, or revoking an
// expired token, is a no-op.
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	_, err := s.Consume(ctx, claims)
	return err
}

// Consume revokes the token and reports whether this call was the one that
// did so. Single-use tokens are redeemed only when Consume returns true.
func (s *TokenService) Consume(ctx context.Context, claims *Claims) (bool, error) {
	if claims == nil || claims.ExpiresAt == nil {
		return false, nil
	}
	remaining := claims.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return false, nil
	}
	return s.cache.SetIfAbsent(ctx, revokedKeyPrefix+claims.ID, claims.Subject, remaining)
}

// Rotate consumes a verified refresh token and issues a fresh pair for the
// given token version. A refresh token that was already consumed yields
// ErrTokenRevoked. If signing fails after consumption the caller gets
// ErrRotationIncomplete and must log in again.
func (s *TokenService) Rotate(ctx context.Context, refresh *Claims, version int) (*Pair, error) {
	if refresh == nil || refresh.Type != TokenRefresh {
		return nil, utils.ErrTokenMalformed
	}
	userID, err := refresh.UserID()
	if err != nil {
		return nil, utils.ErrTokenMalformed
	}
	if refresh.ExpiresAt == nil || !s.now().Before(refresh.ExpiresAt.Time) {
		return nil, utils.ErrTokenExpired
	}

	first, err := s.Consume(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, utils.ErrTokenRevoked
	}

	pair, err := s.IssuePair(userID, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRotationIncomplete, err)
	}
	return pair, nil
}
