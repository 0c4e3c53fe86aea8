package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAccountAPIPost(t *testing.T) {
	ctx := context.Background()

	t.Run("missing base URL rejects the operation", func(t *testing.T) {
		api := newAccountAPI("", nil)

		err := api.signUp(ctx, "Test", "test@example.com", "password123")
		require.Error(t, err)
		assert.Equal(t, "provider_rejected", fintrack.TextCode(err))
	})

	t.Run("sends the bearer token and body", func(t *testing.T) {
		var gotAuth, gotPath string
		var gotBody map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		api := newAccountAPI(srv.URL, nil)

		require.NoError(t, api.linkPassword(ctx, "access-token", "password123"))
		assert.Equal(t, "Bearer access-token", gotAuth)
		assert.Equal(t, "/link-password", gotPath)
		assert.Equal(t, "password123", gotBody["password"])
	})

	t.Run("error body becomes a structured error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{
				"message": "Email already registered",
				"code":    "EMAIL_TAKEN",
			})
		}))
		defer srv.Close()

		api := newAccountAPI(srv.URL, nil)

		err := api.signUp(ctx, "Test", "test@example.com", "password123")
		require.Error(t, err)

		var richErr *errors.Error
		require.True(t, errors.As(err, &richErr))
		assert.Equal(t, "Email already registered", richErr.Message)
		assert.Equal(t, http.StatusConflict, richErr.Code)
		assert.Equal(t, "EMAIL_TAKEN", richErr.TextCode)
	})

	t.Run("unreachable endpoint is a network failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		api := newAccountAPI(srv.URL, nil)

		err := api.requestReset(ctx, "test@example.com")
		require.Error(t, err)
		assert.True(t, fintrack.IsNetworkError(err))
	})
}

func TestNormalizeGrantError(t *testing.T) {
	retrieve := func(status int) error {
		return &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: status},
			Body:     []byte(`{"error":"invalid_grant"}`),
		}
	}

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, normalizeGrantError(nil))
	})

	t.Run("400 and 401 collapse to invalid credentials", func(t *testing.T) {
		assert.True(t, fintrack.IsInvalidCredentials(normalizeGrantError(retrieve(http.StatusBadRequest))))
		assert.True(t, fintrack.IsInvalidCredentials(normalizeGrantError(retrieve(http.StatusUnauthorized))))
	})

	t.Run("403 is a provider rejection", func(t *testing.T) {
		err := normalizeGrantError(retrieve(http.StatusForbidden))
		assert.Equal(t, "provider_rejected", fintrack.TextCode(err))
	})

	t.Run("other statuses keep their code", func(t *testing.T) {
		err := normalizeGrantError(retrieve(http.StatusServiceUnavailable))

		var richErr *errors.Error
		require.True(t, errors.As(err, &richErr))
		assert.Equal(t, http.StatusServiceUnavailable, richErr.Code)
		assert.Equal(t, errors.CategoryAuth, richErr.Category)
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		err := normalizeGrantError(context.DeadlineExceeded)
		assert.True(t, fintrack.IsNetworkError(err))
	})
}

func TestNormalizeAccountErrors(t *testing.T) {
	conflict := errors.New("conflict", errors.CategoryAuth).WithCode(http.StatusConflict)
	unauthorized := errors.New("unauthorized", errors.CategoryAuth).WithCode(http.StatusUnauthorized)

	assert.Equal(t, "email_in_use", fintrack.TextCode(normalizeSignUpError(conflict)))
	assert.Equal(t, "credential_link_conflict", fintrack.TextCode(normalizeLinkError(conflict)))
	assert.Equal(t, "reauthentication_required", fintrack.TextCode(normalizeMutationError(unauthorized)))

	// Non-matching statuses pass through untouched.
	assert.Equal(t, unauthorized, normalizeSignUpError(unauthorized))
	assert.Equal(t, conflict, normalizeMutationError(conflict))
}

func TestRandomState(t *testing.T) {
	a, err := randomState()
	require.NoError(t, err)
	b, err := randomState()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}
