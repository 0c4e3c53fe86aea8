package fintrack

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshLeeway is how close to expiry a cached access token may get
// before it is refreshed proactively.
const refreshLeeway = 30 * time.Second

// TokenSet is what a token endpoint hands back: a short-lived access token
// plus the long-lived refresh token that can mint the next one.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// TokenRefresher exchanges a refresh token for a new TokenSet.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (TokenSet, error)
}

// TokenPairCredential is the backend-issued credential representation: an
// access/refresh pair where the access token is cached until near expiry
// and refreshed through the backend token endpoint. It satisfies the
// credential half of Account; provider adapters compose it with account
// metadata.
type TokenPairCredential struct {
	mu        sync.Mutex
	access    string
	refresh   string
	expiresAt time.Time
	refresher TokenRefresher
	now       func() time.Time
}

// TokenPairOption customizes a TokenPairCredential.
type TokenPairOption func(*TokenPairCredential)

// WithTokenPairClock injects a custom clock (useful for tests).
func WithTokenPairClock(clock func() time.Time) TokenPairOption {
	return func(c *TokenPairCredential) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewTokenPairCredential wraps an issued TokenSet. The refresher is used
// to mint replacements once the access token goes stale.
func NewTokenPairCredential(set TokenSet, refresher TokenRefresher, opts ...TokenPairOption) *TokenPairCredential {
	c := &TokenPairCredential{
		refresher: refresher,
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.install(set)
	return c
}

// AccessToken returns the cached access token while it is still valid,
// refreshing through the token endpoint otherwise. Two calls inside the
// validity window return the same value without a network round-trip.
func (c *TokenPairCredential) AccessToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.access != "" && c.now().Add(refreshLeeway).Before(c.expiresAt) {
		return c.access, nil
	}

	if c.refresher == nil || c.refresh == "" {
		if c.access != "" && !force {
			return c.access, nil
		}
		return "", ErrNoActiveSession
	}

	set, err := c.refresher.RefreshTokens(ctx, c.refresh)
	if err != nil {
		return "", err
	}

	c.install(set)
	return c.access, nil
}

// RefreshToken returns the current refresh token. The endpoint may rotate
// it on every refresh, so callers re-read it before persisting.
func (c *TokenPairCredential) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh
}

// install must be called with the lock held (or before publication).
func (c *TokenPairCredential) install(set TokenSet) {
	c.access = set.AccessToken
	if set.RefreshToken != "" {
		c.refresh = set.RefreshToken
	}
	c.expiresAt = tokenExpiry(set, c.now())
}

// tokenExpiry resolves when the access token stops being usable: the
// endpoint's expiresIn wins, with the JWT exp claim as fallback for
// endpoints that omit it.
func tokenExpiry(set TokenSet, now time.Time) time.Time {
	if set.ExpiresIn > 0 {
		return now.Add(time.Duration(set.ExpiresIn) * time.Second)
	}

	if exp, ok := jwtExpiry(set.AccessToken); ok {
		return exp
	}

	// No expiry information at all: treat as immediately stale so every
	// use goes through the refresher.
	return now
}

// jwtExpiry reads the exp claim without verifying the signature; the
// client never trusts token contents, it only schedules refreshes.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
