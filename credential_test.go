package fintrack_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	fintrack "github.com/goliatone/go-fintrack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	mu    sync.Mutex
	next  fintrack.TokenSet
	err   error
	calls int
}

func (f *fakeRefresher) RefreshTokens(ctx context.Context, refreshToken string) (fintrack.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return fintrack.TokenSet{}, f.err
	}
	return f.next, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTokenPairCredential(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("caches the access token inside the validity window", func(t *testing.T) {
		refresher := &fakeRefresher{}
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		}, refresher, fintrack.WithTokenPairClock(func() time.Time { return base }))

		first, err := cred.AccessToken(ctx, false)
		require.NoError(t, err)
		second, err := cred.AccessToken(ctx, false)
		require.NoError(t, err)

		assert.Equal(t, "access-1", first)
		assert.Equal(t, first, second)
		assert.Equal(t, 0, refresher.callCount())
	})

	t.Run("refreshes near expiry", func(t *testing.T) {
		now := base
		refresher := &fakeRefresher{next: fintrack.TokenSet{
			AccessToken: "access-2",
			ExpiresIn:   3600,
		}}
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    60,
		}, refresher, fintrack.WithTokenPairClock(func() time.Time { return now }))

		// Walk the clock into the refresh leeway.
		now = base.Add(45 * time.Second)

		token, err := cred.AccessToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token)
		assert.Equal(t, 1, refresher.callCount())

		// Endpoint omitted the rotated refresh token: keep the old one.
		assert.Equal(t, "refresh-1", cred.RefreshToken())
	})

	t.Run("force discards a still valid token", func(t *testing.T) {
		refresher := &fakeRefresher{next: fintrack.TokenSet{
			AccessToken: "access-2",
			ExpiresIn:   3600,
		}}
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		}, refresher, fintrack.WithTokenPairClock(func() time.Time { return base }))

		token, err := cred.AccessToken(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token)
		assert.Equal(t, 1, refresher.callCount())
	})

	t.Run("adopts a rotated refresh token", func(t *testing.T) {
		refresher := &fakeRefresher{next: fintrack.TokenSet{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresIn:    3600,
		}}
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
		}, refresher, fintrack.WithTokenPairClock(func() time.Time { return base }))

		// No expiresIn and no exp claim: the token counts as stale
		// immediately, so the first use refreshes.
		token, err := cred.AccessToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token)
		assert.Equal(t, "refresh-2", cred.RefreshToken())
	})

	t.Run("falls back to the JWT exp claim", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "usr-1",
			ExpiresAt: jwt.NewNumericDate(base.Add(time.Hour)),
		}).SignedString([]byte("test-signing-key"))
		require.NoError(t, err)

		refresher := &fakeRefresher{}
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken:  signed,
			RefreshToken: "refresh-1",
		}, refresher, fintrack.WithTokenPairClock(func() time.Time { return base }))

		token, err := cred.AccessToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, signed, token)
		assert.Equal(t, 0, refresher.callCount())
	})

	t.Run("refresh failure propagates", func(t *testing.T) {
		refresher := &fakeRefresher{err: fintrack.ErrInvalidCredentials}
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
		}, refresher, fintrack.WithTokenPairClock(func() time.Time { return base }))

		_, err := cred.AccessToken(ctx, false)
		require.Error(t, err)
		assert.True(t, fintrack.IsInvalidCredentials(err))
	})

	t.Run("no refresher and no refresh token", func(t *testing.T) {
		cred := fintrack.NewTokenPairCredential(fintrack.TokenSet{
			AccessToken: "access-1",
		}, nil, fintrack.WithTokenPairClock(func() time.Time { return base }))

		// Stale but irreplaceable: hand back what we have.
		token, err := cred.AccessToken(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "access-1", token)

		// A forced mint cannot be satisfied.
		_, err = cred.AccessToken(ctx, true)
		require.Error(t, err)
		assert.True(t, fintrack.IsNoActiveSession(err))
	})
}
