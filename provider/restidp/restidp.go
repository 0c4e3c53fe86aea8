// Package restidp adapts the finance backend's own /auth endpoints into an
// identity provider. Accounts are backed by the access/refresh token pair
// the backend issues, so every account carries a password factor and the
// interactive federated flow is not available.
package restidp

import (
	"context"
	"net/http"
	"sync"

	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
	"github.com/goliatone/go-fintrack/client"
)

// Provider implements fintrack.IdentityProvider over the backend token
// endpoints. It also implements fintrack.SessionRestorer: a persisted
// refresh token is enough to resurrect the credential after a restart.
type Provider struct {
	api    *client.Client
	logger fintrack.Logger

	mu       sync.Mutex
	watchers map[int]func(fintrack.Account)
	current  fintrack.Account
	nextID   int
}

// Option customizes the Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger fintrack.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a Provider over the given API client.
func New(api *client.Client, opts ...Option) *Provider {
	p := &Provider{
		api:      api,
		logger:   fintrack.NewDefaultLogger(),
		watchers: map[int]func(fintrack.Account){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (fintrack.Account, error) {
	res, err := p.api.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, normalizeCredentialError(err)
	}

	account := p.newAccount(res.User, res.Tokens)
	p.setCurrent(account)
	return account, nil
}

// SignInInteractive is not supported: the backend only issues credentials
// against email/password.
func (p *Provider) SignInInteractive(ctx context.Context) (fintrack.Account, error) {
	return nil, fintrack.ErrProviderRejected
}

func (p *Provider) SignUp(ctx context.Context, name, email, password string) (fintrack.Account, error) {
	res, err := p.api.Auth.Register(ctx, name, email, password)
	if err != nil {
		return nil, normalizeSignUpError(err)
	}

	account := p.newAccount(res.User, res.Tokens)
	p.setCurrent(account)
	return account, nil
}

// LinkPassword is a no-op here: backend-issued accounts always carry a
// password factor, there is nothing to attach.
func (p *Provider) LinkPassword(ctx context.Context, account fintrack.Account, password string) (fintrack.Account, error) {
	if account == nil {
		return nil, fintrack.ErrNoActiveSession
	}
	return account, nil
}

// Reauthenticate re-runs the password grant for the account's email and
// returns the freshly scoped handle.
func (p *Provider) Reauthenticate(ctx context.Context, account fintrack.Account, password string) (fintrack.Account, error) {
	if account == nil {
		return nil, fintrack.ErrNoActiveSession
	}

	res, err := p.api.Auth.Login(ctx, account.Email(), password)
	if err != nil {
		return nil, normalizeCredentialError(err)
	}

	fresh := p.newAccount(res.User, res.Tokens)
	p.setCurrent(fresh)
	return fresh, nil
}

func (p *Provider) UpdatePassword(ctx context.Context, account fintrack.Account, newPassword string) error {
	if account == nil {
		return fintrack.ErrNoActiveSession
	}

	token, err := account.AccessToken(ctx, false)
	if err != nil {
		return err
	}

	if err := p.api.Auth.UpdatePassword(ctx, token, newPassword); err != nil {
		return normalizeMutationError(err)
	}
	return nil
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	return p.api.Auth.RequestPasswordReset(ctx, email)
}

// SignOut revokes the refresh token server side and drops the current
// account.
func (p *Provider) SignOut(ctx context.Context, account fintrack.Account) error {
	defer p.setCurrent(nil)

	if account == nil {
		return nil
	}

	refresh := account.RefreshToken()
	if refresh == "" {
		return nil
	}

	token, err := account.AccessToken(ctx, false)
	if err != nil {
		p.logger.Warn("sign-out token resolve failed, skipping revoke", "error", err)
		return nil
	}

	return p.api.Auth.Logout(ctx, token, refresh)
}

// Subscribe registers onChange, delivers the current account state once
// immediately, and returns the unsubscribe func.
func (p *Provider) Subscribe(onChange func(fintrack.Account)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = onChange
	current := p.current
	p.mu.Unlock()

	onChange(current)

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// RestoreSession exchanges a persisted refresh token for a live account.
func (p *Provider) RestoreSession(ctx context.Context, refreshToken string) (fintrack.Account, error) {
	set, err := p.api.Auth.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return nil, normalizeCredentialError(err)
	}

	profile, err := p.api.Auth.MeWithToken(ctx, set.AccessToken)
	if err != nil {
		return nil, err
	}

	account := p.newAccount(*profile, set)
	p.setCurrent(account)
	return account, nil
}

func (p *Provider) newAccount(profile fintrack.Profile, tokens fintrack.TokenSet) *account {
	return &account{
		profile: profile,
		cred:    fintrack.NewTokenPairCredential(tokens, p.api.Auth),
	}
}

func (p *Provider) setCurrent(account fintrack.Account) {
	p.mu.Lock()
	p.current = account
	watchers := make([]func(fintrack.Account), 0, len(p.watchers))
	for _, w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.mu.Unlock()

	for _, w := range watchers {
		w(account)
	}
}

// account composes the backend profile with the token pair credential.
type account struct {
	profile fintrack.Profile
	cred    *fintrack.TokenPairCredential
}

func (a *account) ID() string          { return a.profile.ID }
func (a *account) Email() string       { return a.profile.Email }
func (a *account) DisplayName() string { return a.profile.Name }

// HasPasswordFactor is always true: the backend only issues credentials
// against email/password.
func (a *account) HasPasswordFactor() bool { return true }

func (a *account) AccessToken(ctx context.Context, force bool) (string, error) {
	return a.cred.AccessToken(ctx, force)
}

func (a *account) RefreshToken() string {
	return a.cred.RefreshToken()
}

func normalizeCredentialError(err error) error {
	if fintrack.IsNetworkError(err) {
		return err
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code == http.StatusUnauthorized {
		return fintrack.ErrInvalidCredentials
	}
	return err
}

func normalizeSignUpError(err error) error {
	if fintrack.IsNetworkError(err) {
		return err
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code == http.StatusConflict {
		return fintrack.ErrEmailInUse
	}
	return err
}

func normalizeMutationError(err error) error {
	if fintrack.IsNetworkError(err) {
		return err
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code == http.StatusUnauthorized {
		return fintrack.ErrReauthenticationRequired
	}
	return err
}

var (
	_ fintrack.IdentityProvider = (*Provider)(nil)
	_ fintrack.SessionRestorer  = (*Provider)(nil)
)
