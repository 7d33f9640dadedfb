// Package oauth2 provides the Google, GitHub and Apple providers of the eventauth OAuth
// flow. Each provider exchanges an authorization code with golang.org/x/oauth2 and turns
// the provider's user data into an eventauth.SocialProfile.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// BaseOAuth2 holds what every provider shares: the oauth2 config and the HTTP client
// used for the token and profile calls.
type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// HTTPClient is used for token exchange and profile requests. Defaults to
	// http.DefaultClient; tests point it (and the endpoints) at a mock server.
	HTTPClient *http.Client

	name        string
	oauthConfig oauth2.Config
}

func NewBaseOAuth2(name, clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes ...string) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		name:         name,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

func (b *BaseOAuth2) Name() string { return b.name }

// SetEndpoint overrides the provider's authorization and token URLs
func (b *BaseOAuth2) SetEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// AuthCodeURL returns the consent page URL carrying state
func (b *BaseOAuth2) AuthCodeURL(state string) string {
	return b.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// exchangeToken trades the authorization code for a token
func (b *BaseOAuth2) exchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.getHTTPClient())
	token, err := b.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange: %w", b.name, err)
	}
	return token, nil
}

// getJSON fetches url with the access token and decodes the JSON body into out
func (b *BaseOAuth2) getJSON(ctx context.Context, token *oauth2.Token, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed getting user info from %s: %w", b.name, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s user info returned %d", b.name, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse user info: %w", err)
	}
	return nil
}

func stringOf(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	}
	return ""
}
