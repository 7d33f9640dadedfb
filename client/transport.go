package client

import (
	"net/http"

	ea "github.com/panyam/eventauth"
)

// AuthTransport wraps an http.RoundTripper to add an Authorization header and to keep
// the client auth cache honest: any 401 from the server clears the cached identity.
type AuthTransport struct {
	Base  http.RoundTripper
	Token string
	Cache *ea.ClientAuthCache
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		// Clone the request to avoid mutating the original
		req2 := req.Clone(req.Context())
		req2.Header.Set("Authorization", "Bearer "+t.Token)
		req = req2
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && t.Cache != nil {
		t.Cache.Clear()
	}
	return resp, nil
}

// NewAuthTransport creates an AuthTransport over http.DefaultTransport
func NewAuthTransport(cache *ea.ClientAuthCache) *AuthTransport {
	return &AuthTransport{
		Base:  http.DefaultTransport,
		Cache: cache,
	}
}

// NewAuthTransportWithBase creates an AuthTransport with a custom base transport
func NewAuthTransportWithBase(base http.RoundTripper, cache *ea.ClientAuthCache) *AuthTransport {
	return &AuthTransport{
		Base:  base,
		Cache: cache,
	}
}
