package eventauth

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the marketplace role carried by an account and embedded in its sessions.
type Role string

const (
	RoleSponsor   Role = "sponsor"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// AllRoles returns the closed set of roles
func AllRoles() []Role {
	return []Role{RoleSponsor, RoleOrganizer, RoleAdmin}
}

// ParseRole converts a string into a Role, rejecting anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSponsor, RoleOrganizer, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// AccountIdentity is the canonical account, independent of how the user logged in.
// It never carries secret material.
type AccountIdentity struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name,omitempty"`
	Role              Role      `json:"role"`
	PreferredLanguage string    `json:"preferredLanguage,omitempty"`
	EmailVerified     bool      `json:"emailVerified"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// CredentialRecord holds the one-way derived form of an account's password.
type CredentialRecord struct {
	AccountID    string    `json:"-"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// SocialIdentity links one provider account to one AccountIdentity.
type SocialIdentity struct {
	Provider    string         `json:"provider"`
	ProviderID  string         `json:"providerId"`
	AccountID   string         `json:"accountId"`
	Email       string         `json:"email,omitempty"`
	ProfileData map[string]any `json:"profileData,omitempty"`
	LinkedAt    time.Time      `json:"linkedAt"`
}

// SocialProfile is what a provider returns for an exchanged authorization code.
type SocialProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	Attributes map[string]any
}

// NormalizeEmail returns the case-normalized form used as the unique account key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanonicalID coerces a storage-native key into the opaque string form used everywhere
// outside the storage layer. Zero numeric keys and empty strings are rejected.
func CanonicalID(v any) (string, error) {
	var out string
	switch id := v.(type) {
	case string:
		out = strings.TrimSpace(id)
	case int:
		if id > 0 {
			out = strconv.Itoa(id)
		}
	case int64:
		if id > 0 {
			out = strconv.FormatInt(id, 10)
		}
	case uint:
		if id > 0 {
			out = strconv.FormatUint(uint64(id), 10)
		}
	case uint64:
		if id > 0 {
			out = strconv.FormatUint(id, 10)
		}
	case float64:
		// JSON decoders hand numeric ids back as float64
		if id > 0 && id == float64(int64(id)) {
			out = strconv.FormatInt(int64(id), 10)
		}
	case fmt.Stringer:
		out = strings.TrimSpace(id.String())
	default:
		return "", fmt.Errorf("unsupported account id type %T", v)
	}
	if out == "" {
		return "", fmt.Errorf("empty account id")
	}
	return out, nil
}
