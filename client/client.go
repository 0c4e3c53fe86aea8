// Package client is the typed HTTP client for the finance backend. Every
// request goes through a single pipeline that injects the bearer
// credential, decodes the response envelope, and normalizes failures into
// structured errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	fintrack "github.com/goliatone/go-fintrack"
)

// DefaultTimeout bounds a single request round-trip.
const DefaultTimeout = 30 * time.Second

// Client talks to the finance API. Zero value is not usable, use New.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  fintrack.TokenSource
	logger  fintrack.Logger
	debug   bool

	Auth         *AuthService
	Incomes      *IncomesService
	Transactions *TransactionsService
	Categories   *CategoriesService
	Budgets      *BudgetsService
	Reports      *ReportsService
}

// Option customizes the Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource sets where bearer credentials come from. Requests made
// without a token source, or whose source yields an empty token, go out
// without an Authorization header.
func WithTokenSource(ts fintrack.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger sets the logger.
func WithLogger(logger fintrack.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// New builds a Client rooted at baseURL, e.g. "http://localhost:3000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  fintrack.NewDefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.Auth = &AuthService{client: c}
	c.Incomes = &IncomesService{client: c}
	c.Transactions = &TransactionsService{client: c}
	c.Categories = &CategoriesService{client: c}
	c.Budgets = &BudgetsService{client: c}
	c.Reports = &ReportsService{client: c}

	return c
}

// RequestOption tweaks a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	anonymous bool
	bearer    string
}

// Anonymous skips credential injection for this request. Used by the auth
// endpoints themselves, which must work before a session exists.
func Anonymous() RequestOption {
	return func(rc *requestConfig) {
		rc.anonymous = true
	}
}

// WithBearer authorizes this request with an explicit token instead of
// the client's token source.
func WithBearer(token string) RequestOption {
	return func(rc *requestConfig) {
		rc.bearer = token
	}
}

// envelope is the backend response shape. Success responses carry data
// (and for collection endpoints a total), failures carry message, code,
// and optional details.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details map[string]any  `json:"details"`
	Data    json.RawMessage `json:"data"`
	Total   *int            `json:"total"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, opts ...RequestOption) (*envelope, error) {
	cfg := requestConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode request body")
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	switch {
	case cfg.bearer != "":
		req.Header.Set("Authorization", "Bearer "+cfg.bearer)
	case !cfg.anonymous && c.tokens != nil:
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if c.debug {
		c.logger.Debug("api request", "method", method, "url", endpoint)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fintrack.WrapNetworkError(err, fmt.Sprintf("%s %s failed", method, path))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fintrack.WrapNetworkError(err, fmt.Sprintf("%s %s: reading response", method, path))
	}

	env := &envelope{}
	if len(raw) > 0 {
		// A garbled error body still needs to surface the HTTP status, so
		// decode failures are only fatal on success responses.
		if err := json.Unmarshal(raw, env); err != nil && res.StatusCode < http.StatusBadRequest {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode response body").
				WithTextCode(fintrack.TextCodeDecodeFailure).
				WithMetadata(map[string]any{
					"status": res.StatusCode,
					"path":   path,
				})
		}
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, apiError(res.StatusCode, path, env)
	}

	return env, nil
}

// apiError translates a failure envelope into a structured error. Code is
// the HTTP status, TextCode the backend's stable error code, Metadata the
// backend's details payload.
func apiError(status int, path string, env *envelope) error {
	msg := env.Message
	if msg == "" {
		msg = "request failed"
	}

	err := errors.New(msg, categoryForStatus(status)).WithCode(status)

	if env.Code != "" {
		err = err.WithTextCode(env.Code)
	}

	meta := map[string]any{"path": path}
	for k, v := range env.Details {
		meta[k] = v
	}
	return err.WithMetadata(meta)
}

func categoryForStatus(status int) errors.Category {
	switch status {
	case http.StatusBadRequest:
		return errors.CategoryBadInput
	case http.StatusUnauthorized:
		return errors.CategoryAuth
	case http.StatusForbidden:
		return errors.CategoryAuthz
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusConflict:
		return errors.CategoryConflict
	case http.StatusUnprocessableEntity:
		return errors.CategoryValidation
	case http.StatusTooManyRequests:
		return errors.CategoryRateLimit
	default:
		return errors.CategoryInternal
	}
}

func decode[T any](env *envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, errors.Wrap(err, errors.CategoryInternal, "failed to decode response data").
			WithTextCode(fintrack.TextCodeDecodeFailure)
	}
	return out, nil
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values, opts ...RequestOption) (T, error) {
	env, err := c.do(ctx, http.MethodGet, path, query, nil, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](env)
}

func post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	env, err := c.do(ctx, http.MethodPost, path, nil, body, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](env)
}

func put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	env, err := c.do(ctx, http.MethodPut, path, nil, body, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](env)
}

func del(ctx context.Context, c *Client, path string, opts ...RequestOption) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil, opts...)
	return err
}
