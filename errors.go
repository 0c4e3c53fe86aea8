package fintrack

import (
	"context"
	"net"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "invalid_credentials"
	TextCodeEmailInUse         = "email_in_use"
	TextCodeLinkConflict       = "credential_link_conflict"
	TextCodeReauthRequired     = "reauthentication_required"
	TextCodeNoActiveSession    = "no_active_session"
	TextCodeProviderRejected   = "provider_rejected"
	TextCodeNetworkFailure     = "network_failure"
	TextCodeDecodeFailure      = "response_decode_failure"
)

// ErrInvalidCredentials is returned for a failed password sign-in. The
// provider may conflate wrong-password and unknown-account; both normalize
// here so the UI can offer registration.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailInUse is returned when registration hits an existing account.
var ErrEmailInUse = errors.New("an account with this email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(errors.CodeConflict)

// ErrLinkConflict is returned when the provider rejects attaching a
// password credential, e.g. the credential is in use elsewhere.
var ErrLinkConflict = errors.New("credential is already linked to another account", errors.CategoryConflict).
	WithTextCode(TextCodeLinkConflict).
	WithCode(errors.CodeConflict)

// ErrReauthenticationRequired is returned when a mutating operation needs a
// fresher credential than the cached one.
var ErrReauthenticationRequired = errors.New("operation requires recent authentication", errors.CategoryAuth).
	WithTextCode(TextCodeReauthRequired).
	WithCode(errors.CodeUnauthorized)

// ErrNoActiveSession is returned when an operation that needs a signed-in
// account is called without one.
var ErrNoActiveSession = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(errors.CodeUnauthorized)

// ErrProviderRejected is the terminal provider-side policy failure.
// Callers must not retry.
var ErrProviderRejected = errors.New("identity provider rejected the request", errors.CategoryAuth).
	WithTextCode(TextCodeProviderRejected).
	WithCode(errors.CodeForbidden)

// WrapNetworkError marks a transport-level failure as transient so callers
// can decide to retry. Nothing in this package retries automatically.
func WrapNetworkError(err error, msg string) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, msg).
		WithTextCode(TextCodeNetworkFailure)
}

// IsNetworkError reports whether err is a transient transport failure.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeNetworkFailure {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// IsInvalidCredentials reports whether err is a failed password sign-in.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsNoActiveSession reports whether err is the missing-session error.
func IsNoActiveSession(err error) bool {
	return hasTextCode(err, TextCodeNoActiveSession)
}

// TextCode extracts the stable error code UI layers branch on, or the
// empty string when err carries none.
func TextCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == code
}
