// Package client is a Go client for the eventauth HTTP surface. It keeps the session
// cookie in a cookie jar and mirrors the logged-in identity into a ClientAuthCache, the
// same way a browser front end does with local storage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	ea "github.com/panyam/eventauth"
)

// APIError is a non-success response of the auth surface
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed: HTTP %d", e.StatusCode)
}

// AuthClient talks to an eventauth server on behalf of one user
type AuthClient struct {
	serverURL     string
	cache         *ea.ClientAuthCache
	httpClient    *http.Client
	baseTransport http.RoundTripper
	bearerToken   string
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		if client.Jar != nil {
			c.httpClient.Jar = client.Jar
		}
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// WithBearerToken sends token as an Authorization bearer header on every request, for
// callers that hold a session token instead of the session cookie.
func WithBearerToken(token string) ClientOption {
	return func(c *AuthClient) {
		c.bearerToken = token
	}
}

// NewAuthClient creates a client for a server. Legacy cached identities in storage are
// migrated to the current format on creation.
func NewAuthClient(serverURL string, storage ea.ClientStorage, opts ...ClientOption) *AuthClient {
	// Normalize server URL
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	jar, _ := cookiejar.New(nil)
	c := &AuthClient{
		serverURL:     serverURL,
		cache:         ea.NewClientAuthCache(storage),
		httpClient:    &http.Client{Jar: jar},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Wrap the base transport with auth handling
	transport := NewAuthTransportWithBase(c.baseTransport, c.cache)
	transport.Token = c.bearerToken
	c.httpClient.Transport = transport
	// redirects are for browsers; callers see them as responses
	c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c.cache.MigrateLegacyFormat()
	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Cache returns the client auth cache
func (c *AuthClient) Cache() *ea.ClientAuthCache {
	return c.cache
}

// CurrentIdentity returns the cached identity without asking the server
func (c *AuthClient) CurrentIdentity() (*ea.AccountIdentity, bool) {
	return c.cache.CurrentIdentity()
}

// Login authenticates with email and password and caches the identity
func (c *AuthClient) Login(ctx context.Context, email, password string) (*ea.AccountIdentity, error) {
	identity, err := c.authenticate(ctx, "/auth/login", ea.Credentials{Email: email, Password: password}, http.StatusOK)
	if err != nil {
		c.cache.Clear()
		return nil, err
	}
	return identity, nil
}

// Register creates an account, which also logs it in
func (c *AuthClient) Register(ctx context.Context, req ea.RegisterRequest) (*ea.AccountIdentity, error) {
	return c.authenticate(ctx, "/auth/register", req, http.StatusCreated)
}

// Logout ends the session. The cached identity is cleared even if the server fails.
func (c *AuthClient) Logout(ctx context.Context) error {
	defer c.cache.Clear()
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, http.StatusOK, nil)
}

// Me asks the server who is logged in and refreshes the cache with the answer
func (c *AuthClient) Me(ctx context.Context) (*ea.AccountIdentity, error) {
	var identity ea.AccountIdentity
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, http.StatusOK, &identity); err != nil {
		return nil, err
	}
	if err := c.cache.CacheIdentity(&identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// IsLoggedIn reports whether an identity is cached. It does not contact the server.
func (c *AuthClient) IsLoggedIn() bool {
	_, ok := c.cache.CurrentIdentity()
	return ok
}

func (c *AuthClient) authenticate(ctx context.Context, path string, body any, want int) (*ea.AccountIdentity, error) {
	var identity ea.AccountIdentity
	if err := c.do(ctx, http.MethodPost, path, body, want, &identity); err != nil {
		return nil, err
	}
	if err := c.cache.CacheIdentity(&identity); err != nil {
		return nil, fmt.Errorf("failed to cache identity: %w", err)
	}
	return &identity, nil
}

// do sends a JSON request and decodes a JSON response into out
func (c *AuthClient) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("invalid response from server: %w", err)
		}
	}
	return nil
}
