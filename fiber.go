package fintrack

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// FiberGuardConfig configures the fiber-native session guard.
type FiberGuardConfig struct {
	LoginPath      string
	RedirectCookie string
	ContextKey     string
}

// FiberGuard is a fiber-native adapter around the session route guard for
// hosts that mount fiber handlers directly instead of going through
// go-router.
func FiberGuard(session *Session, config ...FiberGuardConfig) fiber.Handler {
	cfg := FiberGuardConfig{}
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

	return func(c *fiber.Ctx) error {
		if session.Loading() {
			return c.Status(fiber.StatusServiceUnavailable).SendString("session initializing")
		}

		if !session.Authenticated() {
			c.Cookie(&fiber.Cookie{
				Name:     cfg.RedirectCookie,
				Value:    c.OriginalURL(),
				Expires:  time.Now().Add(time.Minute * 5),
				HTTPOnly: true,
				Secure:   true,
				SameSite: "Lax",
			})

			statusCode := fiber.StatusSeeOther
			if c.Method() == fiber.MethodGet {
				statusCode = fiber.StatusFound
			}
			return c.Redirect(cfg.LoginPath, statusCode)
		}

		c.Locals(cfg.ContextKey, session.CurrentUser())
		return c.Next()
	}
}
