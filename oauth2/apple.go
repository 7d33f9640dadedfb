package oauth2

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	ea "github.com/panyam/eventauth"
)

// AppleEndpoint is Sign in with Apple's OAuth2 endpoint
var AppleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://appleid.apple.com/auth/authorize",
	TokenURL:  "https://appleid.apple.com/auth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type AppleOAuth2 struct {
	*BaseOAuth2
}

type appleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"` // Apple sends "true" or true
	jwt.RegisteredClaims
}

// NewAppleOAuth2 creates the Apple provider. clientSecret is the signed client secret JWT
// Apple requires, generated outside this package.
func NewAppleOAuth2(clientId string, clientSecret string, callbackUrl string) *AppleOAuth2 {
	return &AppleOAuth2{
		BaseOAuth2: NewBaseOAuth2("apple", clientId, clientSecret, callbackUrl, AppleEndpoint, "name", "email"),
	}
}

// AuthCodeURL asks Apple to post the callback, which it requires when scopes are requested
func (a *AppleOAuth2) AuthCodeURL(state string) string {
	return a.oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "form_post"))
}

// Exchange trades the code for tokens and reads the identity from the id_token. The
// id_token comes straight from Apple's token endpoint over TLS, so its claims are read
// without re-verifying the signature.
func (a *AppleOAuth2) Exchange(ctx context.Context, code string) (*ea.SocialProfile, error) {
	token, err := a.exchangeToken(ctx, code)
	if err != nil {
		return nil, err
	}
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("apple token response has no id_token")
	}

	claims := &appleClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("apple id_token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("apple id_token has no subject")
	}
	if len(claims.Audience) > 0 && !slices.Contains(claims.Audience, a.ClientId) {
		return nil, fmt.Errorf("apple id_token issued for another client")
	}

	profile := &ea.SocialProfile{
		Provider:   a.Name(),
		ProviderID: claims.Subject,
		Attributes: map[string]any{"sub": claims.Subject, "email": claims.Email},
	}
	if v := fmt.Sprint(claims.EmailVerified); v == "true" {
		profile.Email = claims.Email
	}
	return profile, nil
}

var _ ea.OAuthProvider = (*AppleOAuth2)(nil)
