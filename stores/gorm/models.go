//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"time"

	ea "github.com/panyam/eventauth"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return nil
}

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement"`
	Email             string    `gorm:"size:320;uniqueIndex"`
	Name              string    `gorm:"size:100"`
	Role              string    `gorm:"size:16;index"`
	PreferredLanguage string    `gorm:"size:35"`
	EmailVerified     bool      `gorm:"default:false"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() (*ea.AccountIdentity, error) {
	id, err := ea.CanonicalID(m.ID)
	if err != nil {
		return nil, err
	}
	return &ea.AccountIdentity{
		ID:                id,
		Email:             m.Email,
		Name:              m.Name,
		Role:              ea.Role(m.Role),
		PreferredLanguage: m.PreferredLanguage,
		EmailVerified:     m.EmailVerified,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

// CredentialModel is the GORM model for password credentials
type CredentialModel struct {
	AccountID    uint64    `gorm:"primaryKey"`
	PasswordHash string    `gorm:"size:100"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (CredentialModel) TableName() string {
	return "credentials"
}

// SocialIdentityModel is the GORM model for provider links
type SocialIdentityModel struct {
	Provider    string    `gorm:"primaryKey;size:32"`
	ProviderID  string    `gorm:"primaryKey;size:255"`
	AccountID   uint64    `gorm:"index"`
	Email       string    `gorm:"size:320"`
	ProfileData JSONMap   `gorm:"type:jsonb"`
	LinkedAt    time.Time `gorm:"autoCreateTime"`
}

func (SocialIdentityModel) TableName() string {
	return "social_identities"
}

func (m *SocialIdentityModel) ToSocialIdentity() *ea.SocialIdentity {
	return &ea.SocialIdentity{
		Provider:    m.Provider,
		ProviderID:  m.ProviderID,
		AccountID:   strconv.FormatUint(m.AccountID, 10),
		Email:       m.Email,
		ProfileData: m.ProfileData,
		LinkedAt:    m.LinkedAt,
	}
}

// SessionModel is the GORM model for the active session of an account
type SessionModel struct {
	AccountID string    `gorm:"primaryKey;size:64"`
	ID        string    `gorm:"size:64"`
	Role      string    `gorm:"size:16"`
	IssuedAt  time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToStoredSession() *ea.StoredSession {
	return &ea.StoredSession{
		ID:        m.ID,
		AccountID: m.AccountID,
		Role:      ea.Role(m.Role),
		IssuedAt:  m.IssuedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

// parseAccountID turns a canonical id back into the numeric key. ok is false for ids
// this store could never have issued.
func parseAccountID(id string) (uint64, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	return n, err == nil && n > 0
}
