// Package oidc adapts a standards-compliant OIDC issuer into an identity
// provider. Password sign-in uses the resource-owner password grant, the
// interactive flow uses the authorization code grant, and account
// management (sign-up, password linking, revocation) goes through the
// issuer's account REST surface.
package oidc

import (
	"context"
	"net/http"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
	"golang.org/x/oauth2"
)

// InteractiveFlow drives the user through the issuer's hosted login page.
// It receives the authorization URL and must return the code delivered to
// the redirect URL.
type InteractiveFlow func(ctx context.Context, authURL string) (code string, err error)

// Config holds the issuer connection settings.
type Config struct {
	// Issuer is the OIDC issuer URL used for discovery.
	Issuer string

	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes defaults to openid, email, profile.
	Scopes []string

	// AccountURL is the base URL of the issuer's account management REST
	// surface. Required for sign-up, password linking, and revocation.
	AccountURL string

	// Interactive drives the authorization code flow. Leave nil when the
	// host has no interactive surface; SignInInteractive then fails with
	// a provider-rejected error.
	Interactive InteractiveFlow

	HTTPClient *http.Client
	Logger     fintrack.Logger
}

// Provider implements fintrack.IdentityProvider against an OIDC issuer.
type Provider struct {
	cfg      Config
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
	oidc     *gooidc.Provider
	accounts *accountAPI
	logger   fintrack.Logger

	mu       sync.Mutex
	watchers map[int]func(fintrack.Account)
	current  fintrack.Account
	nextID   int
}

// New runs discovery against cfg.Issuer and builds the provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc provider requires issuer and client id", errors.CategoryBadInput)
	}

	if cfg.HTTPClient != nil {
		ctx = gooidc.ClientContext(ctx, cfg.HTTPClient)
	}

	oidcProvider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fintrack.WrapNetworkError(err, "oidc discovery failed")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = fintrack.NewDefaultLogger()
	}

	p := &Provider{
		cfg:  cfg,
		oidc: oidcProvider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: oidcProvider.Verifier(&gooidc.Config{
			ClientID: cfg.ClientID,
		}),
		logger:   logger,
		watchers: map[int]func(fintrack.Account){},
	}

	p.accounts = newAccountAPI(cfg.AccountURL, cfg.HTTPClient)

	return p, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (fintrack.Account, error) {
	token, err := p.oauth.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, normalizeGrantError(err)
	}

	account, err := p.accountFromToken(ctx, token, true)
	if err != nil {
		return nil, err
	}

	p.setCurrent(account)
	return account, nil
}

// SignInInteractive runs the authorization code flow through the
// configured interactive driver.
func (p *Provider) SignInInteractive(ctx context.Context) (fintrack.Account, error) {
	if p.cfg.Interactive == nil {
		return nil, fintrack.ErrProviderRejected
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	code, err := p.cfg.Interactive(ctx, p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "interactive sign-in aborted").
			WithTextCode(fintrack.TextCodeProviderRejected)
	}

	token, err := p.oauth.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, normalizeGrantError(err)
	}

	// Federated accounts have no password factor until one is linked.
	account, err := p.accountFromToken(ctx, token, false)
	if err != nil {
		return nil, err
	}

	p.setCurrent(account)
	return account, nil
}

func (p *Provider) SignUp(ctx context.Context, name, email, password string) (fintrack.Account, error) {
	if err := p.accounts.signUp(ctx, name, email, password); err != nil {
		return nil, normalizeSignUpError(err)
	}
	return p.SignInWithPassword(ctx, email, password)
}

// LinkPassword attaches a password credential to the signed-in account
// through the account surface, then returns a handle that reports the new
// factor.
func (p *Provider) LinkPassword(ctx context.Context, acct fintrack.Account, password string) (fintrack.Account, error) {
	if acct == nil {
		return nil, fintrack.ErrNoActiveSession
	}

	token, err := acct.AccessToken(ctx, false)
	if err != nil {
		return nil, err
	}

	if err := p.accounts.linkPassword(ctx, token, password); err != nil {
		return nil, normalizeLinkError(err)
	}

	linked := withPasswordFactor(acct)
	p.setCurrent(linked)
	return linked, nil
}

func (p *Provider) Reauthenticate(ctx context.Context, acct fintrack.Account, password string) (fintrack.Account, error) {
	if acct == nil {
		return nil, fintrack.ErrNoActiveSession
	}

	token, err := p.oauth.PasswordCredentialsToken(p.clientContext(ctx), acct.Email(), password)
	if err != nil {
		return nil, normalizeGrantError(err)
	}

	fresh, err := p.accountFromToken(ctx, token, acct.HasPasswordFactor())
	if err != nil {
		return nil, err
	}

	p.setCurrent(fresh)
	return fresh, nil
}

func (p *Provider) UpdatePassword(ctx context.Context, acct fintrack.Account, newPassword string) error {
	if acct == nil {
		return fintrack.ErrNoActiveSession
	}

	token, err := acct.AccessToken(ctx, false)
	if err != nil {
		return err
	}

	if err := p.accounts.updatePassword(ctx, token, newPassword); err != nil {
		return normalizeMutationError(err)
	}
	return nil
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	return p.accounts.requestReset(ctx, email)
}

func (p *Provider) SignOut(ctx context.Context, acct fintrack.Account) error {
	defer p.setCurrent(nil)

	if acct == nil {
		return nil
	}

	refresh := acct.RefreshToken()
	if refresh == "" {
		return nil
	}

	return p.accounts.revoke(ctx, refresh)
}

// Subscribe registers onChange, delivers the current state once, and
// returns the unsubscribe func.
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

// RestoreSession rebuilds the credential from a persisted refresh token.
// The refresh grant does not re-issue an ID token, so the profile claims
// come from the userinfo endpoint instead.
func (p *Provider) RestoreSession(ctx context.Context, refreshToken string) (fintrack.Account, error) {
	cctx := p.clientContext(ctx)
	source := p.oauth.TokenSource(cctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := source.Token()
	if err != nil {
		return nil, normalizeGrantError(err)
	}

	info, err := p.oidc.UserInfo(cctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fintrack.WrapNetworkError(err, "userinfo fetch failed")
	}

	var claims profileClaims
	if err := info.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "userinfo claims decode failed").
			WithTextCode(fintrack.TextCodeDecodeFailure)
	}
	claims.Subject = info.Subject

	account := p.newAccount(claims, token, true)
	p.setCurrent(account)
	return account, nil
}

func (p *Provider) accountFromToken(ctx context.Context, token *oauth2.Token, passwordFactor bool) (*account, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("issuer did not return an id_token", errors.CategoryAuth).
			WithTextCode(fintrack.TextCodeProviderRejected)
	}

	idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "id_token verification failed").
			WithTextCode(fintrack.TextCodeProviderRejected)
	}

	var claims profileClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "id_token claims decode failed").
			WithTextCode(fintrack.TextCodeDecodeFailure)
	}
	claims.Subject = idToken.Subject

	return p.newAccount(claims, token, passwordFactor), nil
}

func (p *Provider) newAccount(claims profileClaims, token *oauth2.Token, passwordFactor bool) *account {
	return &account{
		claims:         claims,
		token:          token,
		oauth:          p.oauth,
		clientCtx:      p.clientContext,
		passwordFactor: passwordFactor,
	}
}

func (p *Provider) setCurrent(acct fintrack.Account) {
	p.mu.Lock()
	p.current = acct
	watchers := make([]func(fintrack.Account), 0, len(p.watchers))
	for _, w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.mu.Unlock()

	for _, w := range watchers {
		w(acct)
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.cfg.HTTPClient != nil {
		return gooidc.ClientContext(ctx, p.cfg.HTTPClient)
	}
	return ctx
}

type profileClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// account wraps the oauth2 token pair. The access token is refreshed
// through the issuer's token endpoint when stale.
type account struct {
	claims         profileClaims
	oauth          *oauth2.Config
	clientCtx      func(context.Context) context.Context
	passwordFactor bool

	mu    sync.Mutex
	token *oauth2.Token
}

func (a *account) ID() string              { return a.claims.Subject }
func (a *account) Email() string           { return a.claims.Email }
func (a *account) DisplayName() string     { return a.claims.Name }
func (a *account) HasPasswordFactor() bool { return a.passwordFactor }

func (a *account) AccessToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !force && a.token.Valid() {
		return a.token.AccessToken, nil
	}

	if a.token.RefreshToken == "" {
		if a.token.AccessToken != "" && !force {
			return a.token.AccessToken, nil
		}
		return "", fintrack.ErrNoActiveSession
	}

	source := a.oauth.TokenSource(a.clientCtx(ctx), &oauth2.Token{
		RefreshToken: a.token.RefreshToken,
	})

	fresh, err := source.Token()
	if err != nil {
		return "", normalizeGrantError(err)
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = a.token.RefreshToken
	}
	a.token = fresh
	return fresh.AccessToken, nil
}

func (a *account) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token.RefreshToken
}

// withPasswordFactor clones the handle with the password factor flipped
// on. Only meaningful for accounts minted by this package.
func withPasswordFactor(acct fintrack.Account) fintrack.Account {
	if a, ok := acct.(*account); ok {
		a.mu.Lock()
		defer a.mu.Unlock()
		return &account{
			claims:         a.claims,
			oauth:          a.oauth,
			clientCtx:      a.clientCtx,
			passwordFactor: true,
			token:          a.token,
		}
	}
	return acct
}

var (
	_ fintrack.IdentityProvider = (*Provider)(nil)
	_ fintrack.SessionRestorer  = (*Provider)(nil)
)
