package oauth2

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2/github"

	ea "github.com/panyam/eventauth"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch user info from. Defaults to GitHub's API.
	// Can be overridden for testing.
	UserInfoURL string

	// EmailsURL lists the user's addresses, used when the profile email is private
	EmailsURL string
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string) *GithubOAuth2 {
	return &GithubOAuth2{
		BaseOAuth2:  NewBaseOAuth2("github", clientId, clientSecret, callbackUrl, github.Endpoint, "read:user", "user:email"),
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
	}
}

// Exchange trades the code for a token and reads the GitHub user. The account email is
// the primary verified address from /user/emails.
func (g *GithubOAuth2) Exchange(ctx context.Context, code string) (*ea.SocialProfile, error) {
	token, err := g.exchangeToken(ctx, code)
	if err != nil {
		return nil, err
	}

	var userInfo map[string]any
	if err := g.getJSON(ctx, token, g.UserInfoURL, &userInfo); err != nil {
		slog.Info("error validating github token", "err", err)
		return nil, err
	}
	profile := &ea.SocialProfile{
		Provider:   g.Name(),
		ProviderID: stringOf(userInfo, "id"),
		Name:       stringOf(userInfo, "name"),
		Attributes: userInfo,
	}
	if profile.ProviderID == "" {
		return nil, fmt.Errorf("github user info has no id")
	}
	if profile.Name == "" {
		profile.Name = stringOf(userInfo, "login")
	}

	var emails []githubEmail
	if err := g.getJSON(ctx, token, g.EmailsURL, &emails); err != nil {
		// without a verified address the profile can still match an existing link
		slog.Info("could not list github emails", "err", err)
		return profile, nil
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			profile.Email = e.Email
			break
		}
	}
	return profile, nil
}

var _ ea.OAuthProvider = (*GithubOAuth2)(nil)
