package fintrack

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-fintrack/middleware/guard"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGuard gates navigation on session state and preserves the
// originally requested location across the login round-trip.
type RouteGuard struct {
	session          *Session
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewRouteGuard(session *Session, cfg Config) (*RouteGuard, error) {
	if session == nil {
		return nil, errors.New("route guard requires a session", errors.CategoryInternal)
	}

	g := &RouteGuard{
		session: session,
		cfg:     cfg,
		Logger:  defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler
	g.AuthErrorHandler = g.defaultAuthErrHandler

	return g, nil
}

// ProtectedRoute wraps handlers behind the session guard. While the
// session is loading the request gets a neutral pending response and no
// redirect decision is made.
func (g *RouteGuard) ProtectedRoute() router.MiddlewareFunc {
	return guard.New(guard.Config{
		Session:        g.session,
		LoginPath:      g.loginRoute(),
		RedirectCookie: g.rejectedRouteKey(),
		UserProvider: func() any {
			return g.session.CurrentUser()
		},
	})
}

// GetRedirect pops the preserved location, falling back to def.
func (g *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := g.rejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return g.rejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

// GetRedirectOrDefault pops the preserved location, trying the referer
// header before the configured default.
func (g *RouteGuard) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := g.rejectedRouteKey()
	refererHeader := ctx.Referer()

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = g.rejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

// SetRedirect remembers the requested location for the post-login return.
func (g *RouteGuard) SetRedirect(ctx router.Context) {
	rejectedRoute := g.rejectedRouteKey()

	g.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) loginRoute() string {
	if g.cfg != nil && g.cfg.GetLoginRoute() != "" {
		return g.cfg.GetLoginRoute()
	}
	return "/login"
}

func (g *RouteGuard) rejectedRouteKey() string {
	if g.cfg != nil && g.cfg.GetRejectedRouteKey() != "" {
		return g.cfg.GetRejectedRouteKey()
	}
	return "rejected_route"
}

func (g *RouteGuard) rejectedRouteDefault() string {
	if g.cfg != nil && g.cfg.GetRejectedRouteDefault() != "" {
		return g.cfg.GetRejectedRouteDefault()
	}
	return "/"
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	g.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	g.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(g.loginRoute(), statusCode)
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return g.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
