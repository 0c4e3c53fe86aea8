// Package guard provides route-guard middleware for session-backed
// navigation: pending while the session bootstraps, redirect to the login
// entry point when no credential is active, pass-through otherwise.
package guard

import (
	"errors"
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// ErrMissingSession means the guard was mounted without a session.
var ErrMissingSession = errors.New("guard: missing session")

// Session is the view of the auth session the guard needs. It mirrors the
// session type from the root package without importing it, to avoid
// import cycles.
type Session interface {
	Loading() bool
	Authenticated() bool
}

// UserProvider resolves the value stored in request locals for downstream
// handlers and templates once the guard lets a request through.
type UserProvider func() any

type Config struct {
	// Filter skips the guard for matching requests (e.g. public assets).
	Filter func(router.Context) bool

	// Session is required.
	Session Session

	// PendingHandler runs while the session is still loading. The guard
	// makes no redirect decision in that window; the default answers 503
	// so clients retry once the session settles.
	PendingHandler router.HandlerFunc

	// ErrorHandler receives guard failures (misconfiguration only).
	ErrorHandler router.ErrorHandler

	// LoginPath is where unauthenticated navigations are sent.
	LoginPath string

	// RedirectCookie remembers the originally requested location so the
	// login flow can return the user there afterwards.
	RedirectCookie string

	// ContextKey is the locals key for the resolved user value.
	ContextKey string

	// UserProvider fills ContextKey. Optional.
	UserProvider UserProvider
}

// GetDefaultConfig merges the provided config with defaults.
func GetDefaultConfig(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}

	if cfg.RedirectCookie == "" {
		cfg.RedirectCookie = "rejected_route"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "current_user"
	}

	if cfg.PendingHandler == nil {
		cfg.PendingHandler = func(ctx router.Context) error {
			return ctx.Status(http.StatusServiceUnavailable).SendString("session initializing")
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return ctx.Status(http.StatusInternalServerError).SendString(err.Error())
		}
	}

	return cfg
}

// New returns the guard middleware.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			if cfg.Session == nil {
				return cfg.ErrorHandler(ctx, ErrMissingSession)
			}

			if cfg.Session.Loading() {
				return cfg.PendingHandler(ctx)
			}

			if !cfg.Session.Authenticated() {
				rememberLocation(ctx, cfg)
				statusCode := http.StatusSeeOther
				if ctx.Method() == string(router.GET) {
					statusCode = http.StatusFound
				}
				return ctx.Redirect(cfg.LoginPath, statusCode)
			}

			if cfg.UserProvider != nil {
				ctx.Locals(cfg.ContextKey, cfg.UserProvider())
			}

			return ctx.Next()
		}
	}
}

func rememberLocation(ctx router.Context, cfg Config) {
	ctx.Cookie(&router.Cookie{
		Name:     cfg.RedirectCookie,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}
