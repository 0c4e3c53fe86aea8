package fintrack

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Account is the opaque handle the identity provider hands back for a
// signed-in account. It is the live credential source: AccessToken must
// always be able to produce a currently valid token, minting or refreshing
// transparently when the cached one is stale.
type Account interface {
	ID() string
	Email() string
	DisplayName() string

	// HasPasswordFactor reports whether the account can sign in with
	// email/password, i.e. a password credential is attached.
	HasPasswordFactor() bool

	// AccessToken returns a valid access token, refreshing if the cached
	// one is expired or near expiry. Set force to discard the cache and
	// mint a fresh token unconditionally.
	AccessToken(ctx context.Context, force bool) (string, error)

	// RefreshToken returns the long lived refresh token when the backing
	// representation has one, otherwise the empty string.
	RefreshToken() string
}

// IdentityProvider wraps the external auth backend. Implementations are
// pass-through adapters: they normalize provider failures into the error
// taxonomy in errors.go and do nothing else.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Account, error)

	// SignInInteractive drives the provider's own interactive flow
	// (federated sign-in). Providers that only support password
	// credentials return ErrProviderRejected.
	SignInInteractive(ctx context.Context) (Account, error)

	SignUp(ctx context.Context, name, email, password string) (Account, error)

	// LinkPassword attaches a password credential to an already signed-in
	// account so future logins can use email/password.
	LinkPassword(ctx context.Context, account Account, password string) (Account, error)

	// Reauthenticate re-validates the password for the given account and
	// returns a freshly scoped account handle.
	Reauthenticate(ctx context.Context, account Account, password string) (Account, error)

	UpdatePassword(ctx context.Context, account Account, newPassword string) error

	SendPasswordReset(ctx context.Context, email string) error

	SignOut(ctx context.Context, account Account) error

	// Subscribe registers for async account-state notifications. The
	// current state is delivered once immediately, then on every change;
	// an absent account is delivered as nil. The returned function
	// removes the listener.
	Subscribe(onChange func(Account)) func()
}

// Snapshot is the strict allow-listed projection of a session that is safe
// to persist across restarts. The live Account and the loading flag are
// never part of it.
type Snapshot struct {
	User         *Profile `json:"user,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
}

// SnapshotStore persists the Snapshot. Durability is an optimization:
// implementations report failures but callers treat them as cache misses.
type SnapshotStore interface {
	Persist(ctx context.Context, snap Snapshot) error
	Restore(ctx context.Context) (Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// ProfileFetcher loads the backend profile for the current credential.
// *client.AuthService satisfies this through a small adapter in hosts;
// tests substitute fakes.
type ProfileFetcher interface {
	Me(ctx context.Context) (*Profile, error)
}

// TokenSource yields the current access token for outbound API calls.
// *Session implements it; an empty token with a nil error means "no
// session", never an error.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds the options the route guard needs from hosts.
type Config interface {
	GetLoginRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// NewDefaultLogger returns the stdout fallback logger subpackages use
// until the host wires a real one.
func NewDefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] FINTRACK "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] FINTRACK "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] FINTRACK "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] FINTRACK "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
