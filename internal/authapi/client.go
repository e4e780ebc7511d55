// Package authapi is the client for the customer Authentication API: OTP login, OTP
// verification, progressive profile updates and token refresh. Every call returns either a
// decoded result or one of ErrUnauthorized, *APIError or *TransportError.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	sessiondomain "pickup-portal/client/internal/session/domain"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20
)

// API paths, relative to the base URL.
const (
	PathLogin         = "/customer/login"
	PathVerifyOTP     = "/customer/verify-otp"
	PathUpdateProfile = "/customer/update-profile"
	PathUpdateAddress = "/customer/update-address"
	PathRefresh       = "/customer/refresh"
)

// TokenSource supplies the bearer token for authenticated calls. The session store implements it.
type TokenSource interface {
	AccessToken() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

// AccessToken calls f.
func (f TokenSourceFunc) AccessToken() string { return f() }

// Client calls the Authentication API. Requests are not retried.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	timeout        time.Duration
	onUnauthorized func(context.Context)
	logger         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The default wraps http.DefaultTransport with otelhttp.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithTimeout bounds each request. Zero or negative disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUnauthorizedHandler registers fn to run on every 401 before ErrUnauthorized is returned.
// The session store's ForceLogout is the intended handler.
func WithUnauthorizedHandler(fn func(context.Context)) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient returns a client for the API rooted at baseURL (trailing slash ignored).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: defaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the uniform response wrapper. data is an array for most endpoints and an
// object for refresh; decodeFirst accepts both.
type envelope struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// SendOTP asks the server to text an OTP to mobile. The returned status is a hint and may be StatusUnset.
func (c *Client) SendOTP(ctx context.Context, mobile string) (*StatusResult, error) {
	var out StatusResult
	if _, err := c.do(ctx, http.MethodPost, PathLogin, sendOTPRequest{MobileNumber: mobile}, false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP exchanges mobile + otp for an access token and the current completion status.
// A 200 without an access token is reported as an *APIError.
func (c *Client) VerifyOTP(ctx context.Context, mobile, otp string) (*VerifyResult, error) {
	var out VerifyResult
	if _, err := c.do(ctx, http.MethodPost, PathVerifyOTP, verifyOTPRequest{MobileNumber: mobile, OTP: otp}, false, nil, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "verification response did not include an access token"}
	}
	if out.PhoneNumber == "" {
		out.PhoneNumber = mobile
	}
	return &out, nil
}

// UpdateProfile submits name, date of birth and gender with the bearer token.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (*StatusResult, error) {
	var out StatusResult
	if _, err := c.do(ctx, http.MethodPut, PathUpdateProfile, in, true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAddress submits the pickup address with the bearer token.
func (c *Client) UpdateAddress(ctx context.Context, in AddressUpdate) (*StatusResult, error) {
	var out StatusResult
	if _, err := c.do(ctx, http.MethodPut, PathUpdateAddress, in, true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh presents refreshToken as the refresh cookie and returns a new access token.
// A rotated refresh token is taken from the body, or from Set-Cookie when the body omits it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	cookie := &http.Cookie{Name: sessiondomain.CookieRefreshToken, Value: refreshToken}
	var out RefreshResult
	resp, err := c.do(ctx, http.MethodPost, PathRefresh, nil, false, cookie, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "refresh response did not include an access token"}
	}
	if out.RefreshToken == "" {
		for _, ck := range resp.Cookies() {
			if ck.Name == sessiondomain.CookieRefreshToken && ck.Value != "" {
				out.RefreshToken = ck.Value
			}
		}
	}
	return &out, nil
}

// do sends one request and decodes the first data item into out on HTTP 200.
// The returned response has its body already consumed.
func (c *Client) do(ctx context.Context, method, path string, body any, auth bool, cookie *http.Cookie, out any) (*http.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("path", path).Err(err).Msg("authapi: request failed")
		return nil, NewTransportError(err)
	}
	defer resp.Body.Close()
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("authapi: response")

	// 401 invalidates the session whatever the body holds, including a body that fails to read.
	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return nil, ErrUnauthorized
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NewTransportError(err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode != http.StatusOK {
		msg := ""
		if decodeErr == nil {
			msg = firstNonEmpty(env.Message, env.Error)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, NewTransportError(fmt.Errorf("decode %s response: %w", path, decodeErr))
	}
	if err := decodeFirst(env.Data, out); err != nil {
		return nil, NewTransportError(fmt.Errorf("decode %s data: %w", path, err))
	}
	return resp, nil
}

// decodeFirst decodes data into out. An array yields its first element; null, absent or
// an empty array leave out untouched.
func decodeFirst(data json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		trimmed = bytes.TrimSpace(items[0])
		if bytes.Equal(trimmed, []byte("null")) {
			return nil
		}
	}
	if trimmed[0] != '{' {
		return errors.New("data item is not an object")
	}
	return json.Unmarshal(trimmed, out)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
