package eventauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// OAuthProvider exchanges an authorization code for the user's provider profile.
// Implementations live in the oauth2 package.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*SocialProfile, error)
}

// FlowState is the state of one OAuth login attempt
type FlowState int

const (
	FlowStarted FlowState = iota
	FlowCodeReceived
	FlowProfileExchanged
	FlowIdentityResolved
	FlowCompleted
	FlowFailed
)

func (s FlowState) String() string {
	switch s {
	case FlowStarted:
		return "started"
	case FlowCodeReceived:
		return "code_received"
	case FlowProfileExchanged:
		return "profile_exchanged"
	case FlowIdentityResolved:
		return "identity_resolved"
	case FlowCompleted:
		return "completed"
	case FlowFailed:
		return "failed"
	}
	return fmt.Sprintf("FlowState(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s FlowState) Terminal() bool {
	return s == FlowCompleted || s == FlowFailed
}

// LoginAttempt tracks a single OAuth login from code arrival to a resolved account.
// Attempts are not reusable: once terminal, the caller must Begin a new one.
type LoginAttempt struct {
	Provider       string
	RedirectTarget string

	state   FlowState
	history []FlowState
	profile *SocialProfile
	result  *SocialUser
	err     error
}

// State returns the current state
func (a *LoginAttempt) State() FlowState { return a.state }

// History returns every state the attempt has been in, in order
func (a *LoginAttempt) History() []FlowState { return append([]FlowState(nil), a.history...) }

// Err returns the failure that moved the attempt to FlowFailed
func (a *LoginAttempt) Err() error { return a.err }

func (a *LoginAttempt) advance(next FlowState) error {
	if a.state.Terminal() {
		return fmt.Errorf("login attempt already %s", a.state)
	}
	if next != FlowFailed && next != a.state+1 {
		return fmt.Errorf("illegal transition %s -> %s", a.state, next)
	}
	a.state = next
	a.history = append(a.history, next)
	return nil
}

func (a *LoginAttempt) fail(err error) error {
	if !a.state.Terminal() {
		a.state = FlowFailed
		a.history = append(a.history, FlowFailed)
	}
	a.err = err
	return err
}

// SocialUser is the outcome of a completed OAuth login
type SocialUser struct {
	Account *AccountIdentity
	Social  *SocialIdentity
	Created bool // a new account was provisioned
	Linked  bool // a new provider link was attached to an existing account
}

// OAuthCoordinator drives OAuth login attempts and maps provider profiles to accounts
type OAuthCoordinator struct {
	Store       AccountStore
	Provisioner *Provisioner

	// ExchangeTimeout bounds the provider exchange, defaults to 10 seconds
	ExchangeTimeout time.Duration

	providers map[string]OAuthProvider
}

// NewOAuthCoordinator creates a coordinator for the given providers
func NewOAuthCoordinator(store AccountStore, provisioner *Provisioner, providers ...OAuthProvider) *OAuthCoordinator {
	c := &OAuthCoordinator{Store: store, Provisioner: provisioner}
	for _, p := range providers {
		c.AddProvider(p)
	}
	return c.EnsureDefaults()
}

func (c *OAuthCoordinator) EnsureDefaults() *OAuthCoordinator {
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = 10 * time.Second
	}
	if c.providers == nil {
		c.providers = make(map[string]OAuthProvider)
	}
	if c.Provisioner == nil {
		c.Provisioner = NewProvisioner(c.Store, RoleSponsor)
	}
	c.Provisioner.EnsureDefaults()
	return c
}

// AddProvider registers a provider under its Name()
func (c *OAuthCoordinator) AddProvider(p OAuthProvider) {
	if c.providers == nil {
		c.providers = make(map[string]OAuthProvider)
	}
	c.providers[p.Name()] = p
}

// Providers returns the registered provider names, sorted
func (c *OAuthCoordinator) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthCodeURL returns the consent URL of a provider
func (c *OAuthCoordinator) AuthCodeURL(provider, state string) (string, error) {
	p, ok := c.providers[provider]
	if !ok {
		return "", NewAuthError(KindProviderExchangeFailed, fmt.Sprintf("unknown provider %q", provider), "provider")
	}
	return p.AuthCodeURL(state), nil
}

// Begin starts a login attempt for a provider. An unknown provider yields an attempt that
// is already failed.
func (c *OAuthCoordinator) Begin(provider, redirectTarget string) (*LoginAttempt, error) {
	c.EnsureDefaults()
	a := &LoginAttempt{Provider: provider, RedirectTarget: redirectTarget, state: FlowStarted, history: []FlowState{FlowStarted}}
	if _, ok := c.providers[provider]; !ok {
		return a, a.fail(NewAuthError(KindProviderExchangeFailed, fmt.Sprintf("unknown provider %q", provider), "provider"))
	}
	return a, nil
}

// Complete runs the attempt from code arrival to a resolved account. The caller issues the
// session and writes the client cache.
func (c *OAuthCoordinator) Complete(ctx context.Context, a *LoginAttempt, code string) (*SocialUser, error) {
	c.EnsureDefaults()
	if a.state.Terminal() {
		if a.err != nil {
			return nil, a.err
		}
		return nil, fmt.Errorf("login attempt already %s", a.state)
	}

	// CodeReceived
	if code == "" {
		return nil, a.fail(NewAuthError(KindMissingAuthorizationCode, "no authorization code in callback", "code"))
	}
	if err := a.advance(FlowCodeReceived); err != nil {
		return nil, a.fail(err)
	}

	// ProfileExchanged
	profile, err := c.exchange(ctx, a.Provider, code)
	if err != nil {
		return nil, a.fail(err)
	}
	a.profile = profile
	if err := a.advance(FlowProfileExchanged); err != nil {
		return nil, a.fail(err)
	}

	// IdentityResolved
	result, err := c.resolve(ctx, profile)
	if err != nil {
		return nil, a.fail(err)
	}
	a.result = result
	if err := a.advance(FlowIdentityResolved); err != nil {
		return nil, a.fail(err)
	}

	if err := a.advance(FlowCompleted); err != nil {
		return nil, a.fail(err)
	}
	slog.Info("oauth login completed", "provider", a.Provider, "account_id", result.Account.ID,
		"created", result.Created, "linked", result.Linked)
	return result, nil
}

func (c *OAuthCoordinator) exchange(ctx context.Context, provider, code string) (*SocialProfile, error) {
	p, ok := c.providers[provider]
	if !ok {
		return nil, NewAuthError(KindProviderExchangeFailed, fmt.Sprintf("unknown provider %q", provider), "provider")
	}
	ctx, cancel := context.WithTimeout(ctx, c.ExchangeTimeout)
	defer cancel()

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		slog.Warn("provider exchange failed", "provider", provider, "err", err)
		return nil, wrapError(KindProviderExchangeFailed, "code exchange failed", err)
	}
	if profile == nil || profile.ProviderID == "" {
		return nil, NewAuthError(KindProviderExchangeFailed, "provider returned no subject", "")
	}
	profile.Provider = provider
	profile.Email = NormalizeEmail(profile.Email)
	return profile, nil
}

// resolve maps a provider profile to an account. A (provider, providerID) match always
// wins over an email match since provider ids never change.
func (c *OAuthCoordinator) resolve(ctx context.Context, profile *SocialProfile) (*SocialUser, error) {
	if user, err := c.resolveByProviderID(ctx, profile); user != nil || err != nil {
		return user, err
	}
	if profile.Email == "" {
		return nil, NewAuthError(KindProviderExchangeFailed, "provider returned no email for a new identity", "email")
	}

	social := &SocialIdentity{
		Provider:    profile.Provider,
		ProviderID:  profile.ProviderID,
		Email:       profile.Email,
		ProfileData: profile.Attributes,
		LinkedAt:    c.Provisioner.Now(),
	}

	acct, err := c.Store.GetAccountByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return c.link(ctx, acct, social, profile)
	case !errors.Is(err, ErrAccountNotFound):
		return nil, wrapError(KindStorageUnavailable, "account lookup failed", err)
	}

	now := c.Provisioner.Now()
	acct = &AccountIdentity{
		Email:         profile.Email,
		Name:          profile.Name,
		Role:          c.Provisioner.DefaultRole,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.Store.CreateAccount(ctx, acct, nil, social); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			// lost a race with a concurrent registration for the same email
			existing, lerr := c.Store.GetAccountByEmail(ctx, profile.Email)
			if lerr != nil {
				return nil, wrapError(KindStorageUnavailable, "account lookup failed", lerr)
			}
			return c.link(ctx, existing, social, profile)
		case errors.Is(err, ErrSocialIdentityTaken):
			if user, rerr := c.resolveByProviderID(ctx, profile); user != nil || rerr != nil {
				return user, rerr
			}
		}
		return nil, wrapError(KindStorageUnavailable, "account creation failed", err)
	}
	out, err := canonicalAccount(acct)
	if err != nil {
		return nil, err
	}
	social.AccountID = out.ID
	return &SocialUser{Account: out, Social: social, Created: true}, nil
}

func (c *OAuthCoordinator) resolveByProviderID(ctx context.Context, profile *SocialProfile) (*SocialUser, error) {
	social, err := c.Store.GetSocialIdentity(ctx, profile.Provider, profile.ProviderID)
	if errors.Is(err, ErrSocialIdentityNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, wrapError(KindStorageUnavailable, "social identity lookup failed", err)
	}
	acct, err := c.Store.GetAccountByID(ctx, social.AccountID)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, "linked account lookup failed", err)
	}
	out, err := canonicalAccount(acct)
	if err != nil {
		return nil, err
	}
	return &SocialUser{Account: out, Social: social}, nil
}

func (c *OAuthCoordinator) link(ctx context.Context, acct *AccountIdentity, social *SocialIdentity, profile *SocialProfile) (*SocialUser, error) {
	out, err := canonicalAccount(acct)
	if err != nil {
		return nil, err
	}
	social.AccountID = out.ID
	if err := c.Store.LinkSocialIdentity(ctx, social); err != nil {
		if errors.Is(err, ErrSocialIdentityTaken) {
			if user, rerr := c.resolveByProviderID(ctx, profile); user != nil || rerr != nil {
				return user, rerr
			}
		}
		return nil, wrapError(KindStorageUnavailable, "social identity link failed", err)
	}
	slog.Info("linked social identity", "provider", social.Provider, "account_id", out.ID)
	return &SocialUser{Account: out, Social: social, Linked: true}, nil
}
