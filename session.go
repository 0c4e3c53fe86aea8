package fintrack

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// Session owns the in-memory authentication state: the current profile,
// the live account credential, and the loading flag. All mutating
// operations go through the identity provider adapter and finish with a
// single atomic swap of (user, account, state); partial updates that leave
// the session settled with a stale user are not possible.
//
// Out-of-band provider notifications always win over in-flight local
// operations: every update is tagged with a monotonically increasing epoch
// and completions carrying an older epoch are discarded.
type Session struct {
	mu       sync.Mutex
	provider IdentityProvider
	store    SnapshotStore
	profiles ProfileFetcher
	logger   Logger
	sink     ActivitySink
	now      func() time.Time

	state   SessionState
	user    *Profile
	account Account
	epoch   uint64
	unsub   func()
}

// SessionRestorer is an optional IdentityProvider capability: providers
// whose credential survives a restart through a refresh token implement it
// so Subscribe can resurrect the previous session.
type SessionRestorer interface {
	RestoreSession(ctx context.Context, refreshToken string) (Account, error)
}

// SessionOption customizes Session construction.
type SessionOption func(*Session)

// WithSessionLogger overrides the default logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *Session) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionActivitySink sets the sink that receives session events.
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(s *Session) {
		s.sink = normalizeActivitySink(sink)
	}
}

// NewSession returns a Session wired to the given provider, store, and
// profile fetcher. Dependencies are explicit so tests can substitute
// fakes; nothing here is a process-wide singleton.
func NewSession(provider IdentityProvider, store SnapshotStore, profiles ProfileFetcher, opts ...SessionOption) *Session {
	s := &Session{
		provider: provider,
		store:    store,
		profiles: profiles,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		now:      time.Now,
		state:    StateUninitialized,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether the session is bootstrapping or has a mutating
// operation in flight. While true, CurrentUser is not authoritative.
func (s *Session) Loading() bool {
	return s.State().Loading()
}

// Authenticated reports whether the session settled with a credential.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAuthenticated && s.account != nil
}

// CurrentUser returns a copy of the current profile, or nil.
func (s *Session) CurrentUser() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// HasPasswordCredential reports whether the signed-in account can log in
// with email/password. Callers use it after a federated sign-in to decide
// whether to redirect into the set-password flow.
func (s *Session) HasPasswordCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account != nil && s.account.HasPasswordFactor()
}

// AccessToken returns the latest valid access token for the active
// credential, refreshing transparently when the cached one is stale. With
// no active session it returns the empty string and no error; callers
// distinguish "no token" from "request unauthenticated" themselves.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	if account == nil {
		return "", nil
	}

	token, err := account.AccessToken(ctx, false)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Token implements TokenSource for the API client.
func (s *Session) Token(ctx context.Context) (string, error) {
	return s.AccessToken(ctx)
}

// Login signs in with email/password, installs the returned credential,
// then fetches the backend profile with it. A wrong password or unknown
// account surfaces as ErrInvalidCredentials for UI-level disambiguation.
func (s *Session) Login(ctx context.Context, email, password string) error {
	epoch, err := s.begin()
	if err != nil {
		return err
	}

	account, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.settleAbsent(epoch, false)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return err
	}

	if err := s.installAccount(ctx, epoch, account); err != nil {
		return err
	}

	s.emit(ctx, ActivityEventLoginSuccess, account.ID(), map[string]any{"email": email})
	return nil
}

// LoginWithProvider opens the provider's interactive federated flow. When
// the resulting account has no password credential attached the caller is
// responsible for redirecting into the set-password flow; check
// HasPasswordCredential after this returns.
func (s *Session) LoginWithProvider(ctx context.Context) error {
	epoch, err := s.begin()
	if err != nil {
		return err
	}

	account, err := s.provider.SignInInteractive(ctx)
	if err != nil {
		s.settleAbsent(epoch, false)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{"error": err.Error()})
		return err
	}

	if err := s.installAccount(ctx, epoch, account); err != nil {
		return err
	}

	s.emit(ctx, ActivityEventLoginSuccess, account.ID(), nil)
	return nil
}

// Register creates a new account with the provider, sets its display
// name, installs the credential, and fetches the backend profile.
func (s *Session) Register(ctx context.Context, name, email, password string) error {
	epoch, err := s.begin()
	if err != nil {
		return err
	}

	account, err := s.provider.SignUp(ctx, name, email, password)
	if err != nil {
		s.settleAbsent(epoch, false)
		return err
	}

	if err := s.installAccount(ctx, epoch, account); err != nil {
		return err
	}

	s.emit(ctx, ActivityEventRegistered, account.ID(), map[string]any{"email": email})
	return nil
}

// LinkPasswordCredential attaches a password credential to the currently
// signed-in federated account so future logins can use email/password.
func (s *Session) LinkPasswordCredential(ctx context.Context, password string) error {
	s.mu.Lock()
	account := s.account
	epoch := s.epoch
	s.mu.Unlock()

	if account == nil {
		return ErrNoActiveSession
	}

	linked, err := s.provider.LinkPassword(ctx, account, password)
	if err != nil {
		return err
	}

	s.swapAccount(epoch, linked)
	s.emit(ctx, ActivityEventPasswordLinked, linked.ID(), nil)
	return nil
}

// ChangePassword re-authenticates with the current password, then issues
// the password change against the freshly scoped credential. The ordering
// is a hard invariant: mutating with the possibly stale cached credential
// risks a provider rejection for insufficient recency. After success the
// fresh credential replaces the cached one and its access token is
// re-minted eagerly so subsequent API calls are not rejected.
func (s *Session) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	s.mu.Lock()
	account := s.account
	epoch := s.epoch
	s.mu.Unlock()

	if account == nil {
		return ErrNoActiveSession
	}

	fresh, err := s.provider.Reauthenticate(ctx, account, currentPassword)
	if err != nil {
		return err
	}

	if err := s.provider.UpdatePassword(ctx, fresh, newPassword); err != nil {
		return err
	}

	s.swapAccount(epoch, fresh)

	if _, err := fresh.AccessToken(ctx, true); err != nil {
		s.logger.Warn("eager token re-mint after password change failed", "error", err)
	}

	s.emit(ctx, ActivityEventPasswordChanged, fresh.ID(), nil)
	return nil
}

// SendPasswordReset asks the provider to email a reset link. Success means
// the request was accepted, not that the address exists or that the email
// was delivered.
func (s *Session) SendPasswordReset(ctx context.Context, email string) error {
	return s.provider.SendPasswordReset(ctx, email)
}

// Logout revokes with the provider on a best-effort basis, then
// unconditionally clears the session and wipes the persisted snapshot.
// Network failures never block a logout.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	if account != nil && s.provider != nil {
		if err := s.provider.SignOut(ctx, account); err != nil {
			s.logger.Warn("provider sign-out failed, clearing session anyway", "error", err)
		}
	}

	s.mu.Lock()
	s.epoch++
	from := s.state
	s.user = nil
	s.account = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()

	s.clearSnapshot(ctx)
	s.emit(ctx, ActivityEventLogout, "", map[string]any{"from": string(from)})
}

// Subscribe seeds the session from the persisted snapshot, registers with
// the provider's notification stream, and returns an unsubscribe function.
// The provider delivers the current account state immediately and then on
// every out-of-band change (token revoked elsewhere, multi-device logout).
// Callers must invoke the returned function on teardown to avoid leaking
// the listener.
func (s *Session) Subscribe(ctx context.Context) func() {
	epoch, err := s.begin()
	if err != nil {
		s.logger.Error("subscribe rejected", "error", err)
		return func() {}
	}

	var restoredRefresh string
	if s.store != nil {
		if snap, ok, err := s.store.Restore(ctx); err != nil {
			s.logger.Warn("snapshot restore failed, treating as cache miss", "error", err)
		} else if ok {
			restoredRefresh = snap.RefreshToken
			s.mu.Lock()
			if s.epoch == epoch {
				s.user = snap.User.Clone()
			}
			s.mu.Unlock()
		}
	}

	if restoredRefresh != "" {
		if restorer, ok := s.provider.(SessionRestorer); ok {
			if account, err := restorer.RestoreSession(ctx, restoredRefresh); err != nil {
				s.logger.Warn("session restore from refresh token failed", "error", err)
			} else {
				_ = s.installAccount(ctx, epoch, account)
			}
		}
	}

	unsub := s.provider.Subscribe(func(account Account) {
		s.onProviderChange(account)
	})

	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()

	return func() {
		if unsub != nil {
			unsub()
		}
	}
}

// begin opens a mutation epoch: the session moves to bootstrapping and any
// older in-flight completion becomes stale.
func (s *Session) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canTransition(s.state, StateBootstrapping) {
		return 0, ErrInvalidStateTransition.WithMetadata(map[string]any{
			"from": string(s.state),
			"to":   string(StateBootstrapping),
		})
	}

	s.state = StateBootstrapping
	s.epoch++
	return s.epoch, nil
}

// installAccount stages the credential, fetches the profile with it, and
// settles the session in one atomic swap. Stale epochs are discarded.
func (s *Session) installAccount(ctx context.Context, epoch uint64, account Account) error {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("discarding stale credential install", "epoch", epoch)
		return nil
	}
	// Staged so the request pipeline can authenticate the profile fetch;
	// state stays loading until the swap below.
	s.account = account
	s.mu.Unlock()

	profile, err := s.fetchProfile(ctx)
	if err != nil {
		s.settleAbsent(epoch, true)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	s.user = profile
	s.account = account
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.persistSnapshot(ctx, Snapshot{User: profile.Clone(), RefreshToken: account.RefreshToken()})
	return nil
}

// swapAccount replaces the credential without leaving the authenticated
// state (credential relink, password change).
func (s *Session) swapAccount(epoch uint64, account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.account = account
}

func (s *Session) settleAbsent(epoch uint64, wipe bool) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.user = nil
	s.account = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if wipe {
		s.clearSnapshot(context.Background())
	}
}

// onProviderChange handles the async notification stream. It always wins:
// the epoch is bumped before the fetch so any in-flight local completion
// with an older tag is discarded, and the final swap replaces user,
// account, and state together.
func (s *Session) onProviderChange(account Account) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	if account == nil {
		s.user = nil
		s.account = nil
		s.state = StateUnauthenticated
		s.mu.Unlock()
		s.clearSnapshot(context.Background())
		s.emit(context.Background(), ActivityEventStateChanged, "", map[string]any{
			"state": string(StateUnauthenticated),
		})
		return
	}
	s.state = StateBootstrapping
	s.account = account
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profile, err := s.fetchProfile(ctx)
	if err != nil {
		s.logger.Warn("profile refresh after auth change failed", "error", err)
		s.settleAbsent(epoch, false)
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.user = profile
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.persistSnapshot(ctx, Snapshot{User: profile.Clone(), RefreshToken: account.RefreshToken()})
	s.emit(ctx, ActivityEventStateChanged, account.ID(), map[string]any{
		"state": string(StateAuthenticated),
	})
}

func (s *Session) fetchProfile(ctx context.Context) (*Profile, error) {
	if s.profiles == nil {
		return nil, errors.New("session has no profile fetcher", errors.CategoryInternal)
	}
	profile, err := s.profiles.Me(ctx)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errors.New("backend returned an empty profile", errors.CategoryInternal)
	}
	return profile, nil
}

// Persistence failures never compromise correctness; both paths log and
// move on.
func (s *Session) persistSnapshot(ctx context.Context, snap Snapshot) {
	if s.store == nil {
		return
	}
	if err := s.store.Persist(ctx, snap); err != nil {
		s.logger.Warn("snapshot persist failed", "error", err)
	}
}

func (s *Session) clearSnapshot(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("snapshot clear failed", "error", err)
	}
}

func (s *Session) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	sink := normalizeActivitySink(s.sink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
