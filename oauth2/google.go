package oauth2

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2/google"

	ea "github.com/panyam/eventauth"
)

// GoogleUserInfoURL is Google's OAuth2 userinfo endpoint
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL can be overridden for testing
	UserInfoURL string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string) *GoogleOAuth2 {
	return &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2("google", clientId, clientSecret, callbackUrl, google.Endpoint,
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		),
		UserInfoURL: GoogleUserInfoURL,
	}
}

// Exchange trades the code for a token and reads the Google profile
func (g *GoogleOAuth2) Exchange(ctx context.Context, code string) (*ea.SocialProfile, error) {
	token, err := g.exchangeToken(ctx, code)
	if err != nil {
		return nil, err
	}

	var userInfo map[string]any
	if err := g.getJSON(ctx, token, g.UserInfoURL, &userInfo); err != nil {
		slog.Info("error validating google token", "err", err)
		return nil, err
	}

	profile := &ea.SocialProfile{
		Provider:   g.Name(),
		ProviderID: stringOf(userInfo, "id"),
		Name:       stringOf(userInfo, "name"),
		Attributes: userInfo,
	}
	if profile.ProviderID == "" {
		return nil, fmt.Errorf("google user info has no id")
	}
	// unverified addresses must not be used to link into existing accounts
	if verified, _ := userInfo["verified_email"].(bool); verified {
		profile.Email = stringOf(userInfo, "email")
	}
	return profile, nil
}

var _ ea.OAuthProvider = (*GoogleOAuth2)(nil)
