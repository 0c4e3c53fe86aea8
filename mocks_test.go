package fintrack_test

import (
	"context"
	"io"
	"mime/multipart"
	"sync"

	fintrack "github.com/goliatone/go-fintrack"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// testAccount is a controllable Account implementation.
type testAccount struct {
	mu             sync.Mutex
	id             string
	email          string
	name           string
	passwordFactor bool
	token          string
	refreshToken   string
	tokenErr       error
	tokenCalls     int
	forcedCalls    int
}

func (a *testAccount) ID() string              { return a.id }
func (a *testAccount) Email() string           { return a.email }
func (a *testAccount) DisplayName() string     { return a.name }
func (a *testAccount) HasPasswordFactor() bool { return a.passwordFactor }

func (a *testAccount) AccessToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenCalls++
	if force {
		a.forcedCalls++
	}
	if a.tokenErr != nil {
		return "", a.tokenErr
	}
	return a.token, nil
}

func (a *testAccount) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshToken
}

// fakeProvider implements fintrack.IdentityProvider with pluggable
// behavior and call recording.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	signInFn      func(ctx context.Context, email, password string) (fintrack.Account, error)
	interactiveFn func(ctx context.Context) (fintrack.Account, error)
	signUpFn      func(ctx context.Context, name, email, password string) (fintrack.Account, error)
	linkFn        func(ctx context.Context, account fintrack.Account, password string) (fintrack.Account, error)
	reauthFn      func(ctx context.Context, account fintrack.Account, password string) (fintrack.Account, error)
	updatePassFn  func(ctx context.Context, account fintrack.Account, newPassword string) error
	resetFn       func(ctx context.Context, email string) error
	signOutFn     func(ctx context.Context, account fintrack.Account) error

	watcher func(fintrack.Account)
}

func (p *fakeProvider) record(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
}

func (p *fakeProvider) callOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (fintrack.Account, error) {
	p.record("SignInWithPassword")
	if p.signInFn != nil {
		return p.signInFn(ctx, email, password)
	}
	return nil, fintrack.ErrInvalidCredentials
}

func (p *fakeProvider) SignInInteractive(ctx context.Context) (fintrack.Account, error) {
	p.record("SignInInteractive")
	if p.interactiveFn != nil {
		return p.interactiveFn(ctx)
	}
	return nil, fintrack.ErrProviderRejected
}

func (p *fakeProvider) SignUp(ctx context.Context, name, email, password string) (fintrack.Account, error) {
	p.record("SignUp")
	if p.signUpFn != nil {
		return p.signUpFn(ctx, name, email, password)
	}
	return nil, fintrack.ErrEmailInUse
}

func (p *fakeProvider) LinkPassword(ctx context.Context, account fintrack.Account, password string) (fintrack.Account, error) {
	p.record("LinkPassword")
	if p.linkFn != nil {
		return p.linkFn(ctx, account, password)
	}
	return account, nil
}

func (p *fakeProvider) Reauthenticate(ctx context.Context, account fintrack.Account, password string) (fintrack.Account, error) {
	p.record("Reauthenticate")
	if p.reauthFn != nil {
		return p.reauthFn(ctx, account, password)
	}
	return account, nil
}

func (p *fakeProvider) UpdatePassword(ctx context.Context, account fintrack.Account, newPassword string) error {
	p.record("UpdatePassword")
	if p.updatePassFn != nil {
		return p.updatePassFn(ctx, account, newPassword)
	}
	return nil
}

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email string) error {
	p.record("SendPasswordReset")
	if p.resetFn != nil {
		return p.resetFn(ctx, email)
	}
	return nil
}

func (p *fakeProvider) SignOut(ctx context.Context, account fintrack.Account) error {
	p.record("SignOut")
	if p.signOutFn != nil {
		return p.signOutFn(ctx, account)
	}
	return nil
}

// Subscribe registers the watcher without delivering an initial state so
// tests control notification timing explicitly.
func (p *fakeProvider) Subscribe(onChange func(fintrack.Account)) func() {
	p.mu.Lock()
	p.watcher = onChange
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.watcher = nil
		p.mu.Unlock()
	}
}

func (p *fakeProvider) notify(account fintrack.Account) {
	p.mu.Lock()
	watcher := p.watcher
	p.mu.Unlock()
	if watcher != nil {
		watcher(account)
	}
}

// restorableProvider adds the refresh token resurrection capability.
type restorableProvider struct {
	fakeProvider
	restoreFn func(ctx context.Context, refreshToken string) (fintrack.Account, error)
}

func (p *restorableProvider) RestoreSession(ctx context.Context, refreshToken string) (fintrack.Account, error) {
	p.record("RestoreSession")
	if p.restoreFn != nil {
		return p.restoreFn(ctx, refreshToken)
	}
	return nil, fintrack.ErrNoActiveSession
}

// memStore is an in-memory SnapshotStore that records operations.
type memStore struct {
	mu       sync.Mutex
	snap     fintrack.Snapshot
	has      bool
	persists int
	clears   int

	persistErr error
	restoreErr error
}

func (s *memStore) Persist(ctx context.Context, snap fintrack.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.snap = snap
	s.has = true
	s.persists++
	return nil
}

func (s *memStore) Restore(ctx context.Context) (fintrack.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restoreErr != nil {
		return fintrack.Snapshot{}, false, s.restoreErr
	}
	return s.snap, s.has, nil
}

func (s *memStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = fintrack.Snapshot{}
	s.has = false
	s.clears++
	return nil
}

func (s *memStore) snapshot() (fintrack.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.has
}

// fakeProfiles implements ProfileFetcher.
type fakeProfiles struct {
	mu      sync.Mutex
	profile *fintrack.Profile
	err     error
	calls   int
}

func (f *fakeProfiles) Me(ctx context.Context) (*fintrack.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.profile.Clone(), nil
}

// recordingSink captures emitted activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []fintrack.ActivityEvent
}

func (s *recordingSink) Record(ctx context.Context, event fintrack.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) types() []fintrack.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fintrack.ActivityEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

// MockContext mocks router.Context for controller and guard tests.
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}
