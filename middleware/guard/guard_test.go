package guard_test

import (
	"net/http"
	"testing"

	"github.com/goliatone/go-fintrack/middleware/guard"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	loading       bool
	authenticated bool
}

func (s stubSession) Loading() bool       { return s.loading }
func (s stubSession) Authenticated() bool { return s.authenticated }

// routerContext aliases router.Context so it can be embedded without the
// field name clashing with the interface's Context() method.
type routerContext = router.Context

// stubContext implements just the router.Context surface the guard
// touches; anything else panics via the embedded nil interface.
type stubContext struct {
	routerContext

	method      string
	originalURL string

	nextCalled   bool
	status       int
	sentBody     string
	redirectTo   string
	redirectCode int
	cookies      []*router.Cookie
	locals       map[any]any
}

func newStubContext(method, url string) *stubContext {
	return &stubContext{
		method:      method,
		originalURL: url,
		locals:      map[any]any{},
	}
}

func (c *stubContext) Next() error {
	c.nextCalled = true
	return nil
}

func (c *stubContext) Method() string      { return c.method }
func (c *stubContext) OriginalURL() string { return c.originalURL }

func (c *stubContext) Status(code int) router.Context {
	c.status = code
	return c
}

func (c *stubContext) SendString(s string) error {
	c.sentBody = s
	return nil
}

func (c *stubContext) Redirect(path string, status ...int) error {
	c.redirectTo = path
	if len(status) > 0 {
		c.redirectCode = status[0]
	}
	return nil
}

func (c *stubContext) Cookie(cookie *router.Cookie) {
	c.cookies = append(c.cookies, cookie)
}

func (c *stubContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.locals[key] = value[0]
		return nil
	}
	return c.locals[key]
}

func run(t *testing.T, cfg guard.Config, ctx *stubContext) error {
	t.Helper()
	mw := guard.New(cfg)
	handler := mw(func(c router.Context) error {
		return c.Next()
	})
	return handler(ctx)
}

func TestGuardMissingSession(t *testing.T) {
	ctx := newStubContext("GET", "/dashboard")

	err := run(t, guard.Config{}, ctx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, ctx.status)
	assert.Equal(t, guard.ErrMissingSession.Error(), ctx.sentBody)
}

func TestGuardPendingSession(t *testing.T) {
	ctx := newStubContext("GET", "/dashboard")

	err := run(t, guard.Config{Session: stubSession{loading: true}}, ctx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, ctx.status)
	assert.False(t, ctx.nextCalled)
	assert.Empty(t, ctx.redirectTo)
}

func TestGuardUnauthenticatedRedirect(t *testing.T) {
	t.Run("GET preserves the location and redirects 302", func(t *testing.T) {
		ctx := newStubContext("GET", "/reports?month=5")

		err := run(t, guard.Config{Session: stubSession{}}, ctx)
		require.NoError(t, err)

		assert.Equal(t, "/login", ctx.redirectTo)
		assert.Equal(t, http.StatusFound, ctx.redirectCode)
		assert.False(t, ctx.nextCalled)

		require.Len(t, ctx.cookies, 1)
		cookie := ctx.cookies[0]
		assert.Equal(t, "rejected_route", cookie.Name)
		assert.Equal(t, "/reports?month=5", cookie.Value)
		assert.True(t, cookie.HTTPOnly)
	})

	t.Run("POST redirects 303", func(t *testing.T) {
		ctx := newStubContext("POST", "/transactions")

		err := run(t, guard.Config{Session: stubSession{}}, ctx)
		require.NoError(t, err)

		assert.Equal(t, http.StatusSeeOther, ctx.redirectCode)
	})

	t.Run("custom login path and cookie", func(t *testing.T) {
		ctx := newStubContext("GET", "/reports")

		err := run(t, guard.Config{
			Session:        stubSession{},
			LoginPath:      "/auth/sign-in",
			RedirectCookie: "return_to",
		}, ctx)
		require.NoError(t, err)

		assert.Equal(t, "/auth/sign-in", ctx.redirectTo)
		require.Len(t, ctx.cookies, 1)
		assert.Equal(t, "return_to", ctx.cookies[0].Name)
	})
}

func TestGuardAuthenticatedPassThrough(t *testing.T) {
	ctx := newStubContext("GET", "/dashboard")

	user := map[string]string{"id": "usr-1"}
	err := run(t, guard.Config{
		Session: stubSession{authenticated: true},
		UserProvider: func() any {
			return user
		},
	}, ctx)
	require.NoError(t, err)

	assert.True(t, ctx.nextCalled)
	assert.Empty(t, ctx.redirectTo)
	assert.Equal(t, user, ctx.locals["current_user"])
}

func TestGuardFilterSkips(t *testing.T) {
	ctx := newStubContext("GET", "/public/styles.css")

	err := run(t, guard.Config{
		// No session configured: the filter must short-circuit before the
		// misconfiguration check.
		Filter: func(c router.Context) bool { return true },
	}, ctx)
	require.NoError(t, err)

	assert.True(t, ctx.nextCalled)
}
