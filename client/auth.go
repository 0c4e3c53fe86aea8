package client

import (
	"context"

	fintrack "github.com/goliatone/go-fintrack"
)

// AuthResult is what the credential-issuing endpoints return: the profile
// plus the initial token pair.
type AuthResult struct {
	User   fintrack.Profile  `json:"user"`
	Tokens fintrack.TokenSet `json:"tokens"`
}

// AuthService covers the /auth endpoints. Login, Register, and
// RefreshTokens are anonymous by construction since they run before a
// usable credential exists.
type AuthService struct {
	client *Client
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return post[AuthResult](ctx, s.client, "/auth/login", loginRequest{
		Email:    email,
		Password: password,
	}, Anonymous())
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	return post[AuthResult](ctx, s.client, "/auth/register", registerRequest{
		Name:     name,
		Email:    email,
		Password: password,
	}, Anonymous())
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshTokens exchanges a refresh token for a fresh token pair. The
// endpoint may rotate the refresh token; callers must adopt the returned
// one.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (fintrack.TokenSet, error) {
	return post[fintrack.TokenSet](ctx, s.client, "/auth/refresh", refreshRequest{
		RefreshToken: refreshToken,
	}, Anonymous())
}

// Me returns the profile for the current credential.
func (s *AuthService) Me(ctx context.Context) (*fintrack.Profile, error) {
	profile, err := get[fintrack.Profile](ctx, s.client, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset asks the backend to send a reset email. The call
// succeeds whether or not the account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := post[struct{}](ctx, s.client, "/auth/password-reset", resetRequest{Email: email}, Anonymous())
	return err
}

// MeWithToken is Me authorized with an explicit access token, for callers
// that hold a credential the client's token source does not know about.
func (s *AuthService) MeWithToken(ctx context.Context, token string) (*fintrack.Profile, error) {
	profile, err := get[fintrack.Profile](ctx, s.client, "/auth/me", nil, WithBearer(token))
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type updatePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// UpdatePassword changes the password for the account the token belongs
// to. The backend expects a recently issued token; stale ones get a 401
// with a reauthentication code.
func (s *AuthService) UpdatePassword(ctx context.Context, token, newPassword string) error {
	_, err := put[struct{}](ctx, s.client, "/auth/password", updatePasswordRequest{
		NewPassword: newPassword,
	}, WithBearer(token))
	return err
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the refresh token server side.
func (s *AuthService) Logout(ctx context.Context, token, refreshToken string) error {
	_, err := post[struct{}](ctx, s.client, "/auth/logout", logoutRequest{
		RefreshToken: refreshToken,
	}, WithBearer(token))
	return err
}

var (
	_ fintrack.TokenRefresher = (*AuthService)(nil)
	_ fintrack.ProfileFetcher = (*AuthService)(nil)
)
