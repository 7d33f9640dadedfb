package eventauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterRequest is the input of a password registration
type RegisterRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password"`
	Name              string `json:"name" validate:"max=100"`
	PreferredLanguage string `json:"preferredLanguage" validate:"omitempty,bcp47_language_tag"`
}

// Provisioner creates and maintains accounts
type Provisioner struct {
	Store AccountStore

	// DefaultRole is assigned to every self-registered or first-time social account.
	// Admin is never used as a default; it falls back to sponsor.
	DefaultRole Role

	// Now is used for timestamps, defaults to time.Now
	Now func() time.Time

	validate *validator.Validate
}

// NewProvisioner creates a Provisioner with the given default role
func NewProvisioner(store AccountStore, defaultRole Role) *Provisioner {
	return (&Provisioner{Store: store, DefaultRole: defaultRole}).EnsureDefaults()
}

func (p *Provisioner) EnsureDefaults() *Provisioner {
	if p.DefaultRole != RoleSponsor && p.DefaultRole != RoleOrganizer {
		p.DefaultRole = RoleSponsor
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.validate == nil {
		p.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return p
}

// Register creates an account with a password.
//
// Checks run in order: email, password strength, email uniqueness. The store's own
// uniqueness guarantee is the final arbiter for concurrent registrations.
func (p *Provisioner) Register(ctx context.Context, req RegisterRequest) (*AccountIdentity, error) {
	p.EnsureDefaults()
	req.Email = NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if err := p.validateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength {
		return nil, NewAuthError(KindWeakCredential, "password too short", "password")
	}

	if _, err := p.Store.GetAccountByEmail(ctx, req.Email); err == nil {
		return nil, NewAuthError(KindEmailAlreadyUsed, "email already registered", "email")
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, wrapError(KindStorageUnavailable, "account lookup failed", err)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, "credential derivation failed", err)
	}

	now := p.Now()
	acct := &AccountIdentity{
		Email:             req.Email,
		Name:              req.Name,
		Role:              p.DefaultRole,
		PreferredLanguage: req.PreferredLanguage,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	cred := &CredentialRecord{PasswordHash: hash, CreatedAt: now}
	if err := p.Store.CreateAccount(ctx, acct, cred, nil); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, NewAuthError(KindEmailAlreadyUsed, "email already registered", "email")
		}
		return nil, wrapError(KindStorageUnavailable, "account creation failed", err)
	}

	out, err := canonicalAccount(acct)
	if err != nil {
		return nil, err
	}
	slog.Info("account registered", "account_id", out.ID, "role", out.Role)
	return out, nil
}

func (p *Provisioner) validateRequest(req RegisterRequest) error {
	err := p.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return wrapError(KindInvalidInput, "invalid registration input", err)
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Email":
		return NewAuthError(KindInvalidEmail, "email missing or malformed", "email")
	case "Name":
		return NewAuthError(KindInvalidInput, "Name must be at most 100 characters", "name")
	case "PreferredLanguage":
		return NewAuthError(KindInvalidInput, "Preferred language must be a language tag like \"en\" or \"fr-CA\"", "preferredLanguage")
	}
	return wrapError(KindInvalidInput, "invalid registration input", err)
}

// SetRole changes the role of an account. Sessions issued earlier keep the role they
// were issued with until they are re-issued.
func (p *Provisioner) SetRole(ctx context.Context, accountID string, role Role) (*AccountIdentity, error) {
	p.EnsureDefaults()
	if _, err := ParseRole(string(role)); err != nil {
		return nil, wrapError(KindInvalidInput, "unknown role", err)
	}
	return p.update(ctx, accountID, func(acct *AccountIdentity) { acct.Role = role })
}

// UpdateProfile changes the display name and preferred language of an account
func (p *Provisioner) UpdateProfile(ctx context.Context, accountID, name, preferredLanguage string) (*AccountIdentity, error) {
	p.EnsureDefaults()
	if err := p.validate.Var(preferredLanguage, "omitempty,bcp47_language_tag"); err != nil {
		return nil, NewAuthError(KindInvalidInput, "Preferred language must be a language tag like \"en\" or \"fr-CA\"", "preferredLanguage")
	}
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return nil, NewAuthError(KindInvalidInput, "Name must be at most 100 characters", "name")
	}
	return p.update(ctx, accountID, func(acct *AccountIdentity) {
		acct.Name = name
		acct.PreferredLanguage = preferredLanguage
	})
}

func (p *Provisioner) update(ctx context.Context, accountID string, mutate func(*AccountIdentity)) (*AccountIdentity, error) {
	acct, err := p.Store.GetAccountByID(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, wrapError(KindInvalidInput, "account not found", err)
	} else if err != nil {
		return nil, wrapError(KindStorageUnavailable, "account lookup failed", err)
	}
	mutate(acct)
	acct.UpdatedAt = p.Now()
	if err := p.Store.UpdateAccount(ctx, acct); err != nil {
		return nil, wrapError(KindStorageUnavailable, "account update failed", err)
	}
	return canonicalAccount(acct)
}
