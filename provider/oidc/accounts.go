package oidc

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
	"golang.org/x/oauth2"
)

// accountAPI is the issuer's account management REST surface: the
// operations OIDC itself does not standardize.
type accountAPI struct {
	baseURL string
	http    *http.Client
}

func newAccountAPI(baseURL string, hc *http.Client) *accountAPI {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &accountAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

func (a *accountAPI) signUp(ctx context.Context, name, email, password string) error {
	return a.post(ctx, "/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (a *accountAPI) linkPassword(ctx context.Context, token, password string) error {
	return a.post(ctx, "/link-password", token, map[string]string{
		"password": password,
	})
}

func (a *accountAPI) updatePassword(ctx context.Context, token, newPassword string) error {
	return a.post(ctx, "/update-password", token, map[string]string{
		"new_password": newPassword,
	})
}

func (a *accountAPI) requestReset(ctx context.Context, email string) error {
	return a.post(ctx, "/reset", "", map[string]string{
		"email": email,
	})
}

func (a *accountAPI) revoke(ctx context.Context, refreshToken string) error {
	return a.post(ctx, "/revoke", "", map[string]string{
		"refresh_token": refreshToken,
	})
}

func (a *accountAPI) post(ctx context.Context, path, token string, body any) error {
	if a.baseURL == "" {
		return fintrack.ErrProviderRejected
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode account request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to build account request")
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := a.http.Do(req)
	if err != nil {
		return fintrack.WrapNetworkError(err, "account endpoint unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)

		msg := apiErr.Message
		if msg == "" {
			msg = "account operation failed"
		}

		richErr := errors.New(msg, errors.CategoryAuth).WithCode(res.StatusCode)
		if apiErr.Code != "" {
			richErr = richErr.WithTextCode(apiErr.Code)
		}
		return richErr
	}

	return nil
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate state")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// normalizeGrantError maps token endpoint failures into the shared error
// taxonomy. The password grant answers invalid credentials with a 400 or
// 401 depending on the issuer, both collapse to the same error.
func normalizeGrantError(err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		switch retrieveErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return fintrack.ErrInvalidCredentials
		case http.StatusForbidden:
			return fintrack.ErrProviderRejected
		}
		return errors.Wrap(err, errors.CategoryAuth, "token endpoint rejected the request").
			WithCode(retrieveErr.Response.StatusCode)
	}

	return fintrack.WrapNetworkError(err, "token endpoint unreachable")
}

func normalizeSignUpError(err error) error {
	if statusOf(err) == http.StatusConflict {
		return fintrack.ErrEmailInUse
	}
	return err
}

func normalizeLinkError(err error) error {
	if statusOf(err) == http.StatusConflict {
		return fintrack.ErrLinkConflict
	}
	return err
}

func normalizeMutationError(err error) error {
	if statusOf(err) == http.StatusUnauthorized {
		return fintrack.ErrReauthenticationRequired
	}
	return err
}

func statusOf(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Code
	}
	return 0
}
