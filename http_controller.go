package fintrack

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterAuthRoutes mounts the auth page handlers.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow).
		SetName("pwd-forgot.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).
		SetName("pwd-forgot.post")

	app.Get(controller.Routes.SetPassword, controller.SetPasswordShow).
		SetName("pwd-set.get")
	app.Post(controller.Routes.SetPassword, controller.SetPasswordPost).
		SetName("pwd-set.post")

	app.Post(controller.Routes.ChangePassword, controller.ChangePasswordPost).
		SetName("pwd-change.post")
}

type AuthControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	ForgotPassword string
	SetPassword    string
	ChangePassword string
}

type AuthControllerViews struct {
	Login          string
	Register       string
	ForgotPassword string
	SetPassword    string
	Profile        string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Session      *Session
	Guard        *RouteGuard
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerSession(session *Session) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Session = session
		return c
	}
}

func WithControllerGuard(guard *RouteGuard) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = guard
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultControllerErrHandler,
		Routes: &AuthControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			ForgotPassword: "/forgot-password",
			SetPassword:    "/set-password",
			ChangePassword: "/profile/password",
		},
		Views: &AuthControllerViews{
			Login:          "login",
			Register:       "register",
			ForgotPassword: "forgot_password",
			SetPassword:    "set_password",
			Profile:        "profile",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Session == nil {
		panic("Missing Session in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	if err := a.Session.Login(ctx.Context(), payload.Email, payload.Password); err != nil {
		viewCtx := router.ViewContext{
			"record": payload,
			"errors": map[string]string{
				"authentication": "Invalid email or password",
			},
			"error_code": TextCode(err),
		}

		// The provider conflates unknown-account with wrong-password, so
		// every invalid-credential failure gets the registration
		// affordance with the attempted email pre-filled.
		if IsInvalidCredentials(err) {
			viewCtx["suggest_register"] = true
			viewCtx["register_url"] = fmt.Sprintf("%s?email=%s", a.Routes.Register, payload.Email)
		}

		return ctx.Render(a.Views.Login, viewCtx)
	}

	redirect := "/"
	if a.Guard != nil {
		redirect = a.Guard.GetRedirect(ctx, "/")
	}

	return ctx.Redirect(redirect, http.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Session.Logout(ctx.Context())
	return ctx.Redirect("/", http.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{
			Email: ctx.Query("email", ""),
		},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Session.Register(ctx.Context(), payload.Name, payload.Email, payload.Password); err != nil {
		a.Logger.Error("register error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Registration failed",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"errors":     map[string]string{"registration": err.Error()},
			"error_code": TextCode(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AuthController) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// ForgotPasswordPayload holds values for the reset request
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.ForgotPassword, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	// Accepted means "request accepted", never "account exists"; the view
	// copy stays identical either way.
	if err := a.Session.SendPasswordReset(ctx.Context(), payload.Email); err != nil {
		a.Logger.Warn("password reset request failed", "error", err)
	}

	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"record":    payload,
		"requested": true,
	})
}

func (a *AuthController) SetPasswordShow(ctx router.Context) error {
	if !a.Session.Authenticated() {
		return ctx.Redirect(a.Routes.Login, http.StatusSeeOther)
	}

	return ctx.Render(a.Views.SetPassword, router.ViewContext{
		"errors":       nil,
		"has_password": a.Session.HasPasswordCredential(),
	})
}

// SetPasswordPayload attaches a password to a federated account
type SetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r SetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) SetPasswordPost(ctx router.Context) error {
	payload := new(SetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.SetPassword, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Session.LinkPasswordCredential(ctx.Context(), payload.Password); err != nil {
		a.Logger.Error("link password credential: ", "error", err)
		return ctx.Render(a.Views.SetPassword, router.ViewContext{
			"record":     payload,
			"errors":     map[string]string{"link": err.Error()},
			"error_code": TextCode(err),
		})
	}

	redirect := "/"
	if a.Guard != nil {
		redirect = a.Guard.GetRedirect(ctx, "/")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password set, you can now sign in with email and password",
	}).Redirect(redirect, fiber.StatusSeeOther)
}

// ChangePasswordPayload re-validates the current password before changing
type ChangePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AuthController) ChangePasswordPost(ctx router.Context) error {
	payload := new(ChangePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Profile, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Session.ChangePassword(ctx.Context(), payload.CurrentPassword, payload.NewPassword); err != nil {
		a.Logger.Error("change password: ", "error", err)
		return ctx.Render(a.Views.Profile, router.ViewContext{
			"errors":     map[string]string{"password": err.Error()},
			"error_code": TextCode(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated",
	}).Redirect("/", fiber.StatusSeeOther)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a map
// the views can key field messages from.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verr validation.Errors
	if errors.As(err, &verr) {
		for field, ferr := range verr {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func defaultControllerErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
