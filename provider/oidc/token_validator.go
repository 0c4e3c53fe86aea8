package oidc

import (
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
)

// TokenValidator verifies issuer-signed access tokens against the JWKS
// endpoint, for hosts that want to check inbound tokens locally instead of
// calling the userinfo endpoint per request.
type TokenValidator struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
}

// ValidatorConfig configures the JWKS validator.
type ValidatorConfig struct {
	// JWKSURL is the issuer's jwks_uri.
	JWKSURL string

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience, when set, must match one of the token's aud values.
	Audience string

	RefreshInterval time.Duration
}

// NewTokenValidator fetches the key set and keeps it refreshed in the
// background. Call Close when done.
func NewTokenValidator(cfg ValidatorConfig) (*TokenValidator, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("token validator requires a JWKS URL", errors.CategoryBadInput)
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWT set: %s", err)
		},
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fintrack.WrapNetworkError(err, fmt.Sprintf("failed to get JWKS from %s", cfg.JWKSURL))
	}

	return &TokenValidator{
		jwks:     jwks,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// Validate parses and verifies the token, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "token validation failed").
			WithCode(errors.CodeUnauthorized)
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	return claims, nil
}

// Close stops the background key refresh.
func (v *TokenValidator) Close() {
	v.jwks.EndBackground()
}
