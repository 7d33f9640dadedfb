//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"
	ea "github.com/panyam/eventauth"
)

const (
	KindAccount        = "Account"
	KindAccountEmail   = "AccountEmail"
	KindCredential     = "Credential"
	KindSocialIdentity = "SocialIdentity"
	KindSession        = "Session"
)

// AccountEntity is the Datastore entity for accounts
type AccountEntity struct {
	Key               *datastore.Key `datastore:"__key__"`
	Email             string         `datastore:"email"`
	Name              string         `datastore:"name,noindex"`
	Role              string         `datastore:"role"`
	PreferredLanguage string         `datastore:"preferred_language,noindex"`
	EmailVerified     bool           `datastore:"email_verified"`
	CreatedAt         time.Time      `datastore:"created_at"`
	UpdatedAt         time.Time      `datastore:"updated_at"`
	Version           int            `datastore:"version"`
}

func (e *AccountEntity) ToAccount() (*ea.AccountIdentity, error) {
	id, err := ea.CanonicalID(e.Key.ID)
	if err != nil {
		return nil, err
	}
	return &ea.AccountIdentity{
		ID:                id,
		Email:             e.Email,
		Name:              e.Name,
		Role:              ea.Role(e.Role),
		PreferredLanguage: e.PreferredLanguage,
		EmailVerified:     e.EmailVerified,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}, nil
}

// AccountEmailEntity reserves an email for one account
// Key format: normalized email
type AccountEmailEntity struct {
	AccountID int64     `datastore:"account_id"`
	CreatedAt time.Time `datastore:"created_at"`
}

// CredentialEntity holds the password hash, keyed under its account
type CredentialEntity struct {
	PasswordHash string    `datastore:"password_hash,noindex"`
	CreatedAt    time.Time `datastore:"created_at"`
}

// SocialIdentityEntity is the Datastore entity for provider links
// Key format: Provider + ":" + ProviderID
type SocialIdentityEntity struct {
	Provider    string    `datastore:"provider"`
	ProviderID  string    `datastore:"provider_id"`
	AccountID   string    `datastore:"account_id"`
	Email       string    `datastore:"email"`
	ProfileData []byte    `datastore:"profile_data,noindex"` // JSON encoded
	LinkedAt    time.Time `datastore:"linked_at"`
}

func (e *SocialIdentityEntity) ToSocialIdentity() *ea.SocialIdentity {
	out := &ea.SocialIdentity{
		Provider:   e.Provider,
		ProviderID: e.ProviderID,
		AccountID:  e.AccountID,
		Email:      e.Email,
		LinkedAt:   e.LinkedAt,
	}
	if len(e.ProfileData) > 0 {
		json.Unmarshal(e.ProfileData, &out.ProfileData)
	}
	return out
}

func SocialIdentityToEntity(si *ea.SocialIdentity) *SocialIdentityEntity {
	e := &SocialIdentityEntity{
		Provider:   si.Provider,
		ProviderID: si.ProviderID,
		AccountID:  si.AccountID,
		Email:      si.Email,
		LinkedAt:   si.LinkedAt,
	}
	if si.ProfileData != nil {
		e.ProfileData, _ = json.Marshal(si.ProfileData)
	}
	return e
}

// SessionEntity is the active session of an account
// Key format: account id
type SessionEntity struct {
	ID        string    `datastore:"id"`
	Role      string    `datastore:"role"`
	IssuedAt  time.Time `datastore:"issued_at"`
	ExpiresAt time.Time `datastore:"expires_at"`
}
