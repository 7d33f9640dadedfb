package eventauth

import (
	"context"
	"time"
)

// AccountStore persists accounts, their credential records and linked social identities.
//
// Implementations must enforce email uniqueness themselves (unique index, transaction or
// lock) and report a violation as ErrEmailTaken: the check-then-insert done by callers is
// only an early exit. Identities returned by a store must already carry a canonical string
// ID (see CanonicalID).
type AccountStore interface {
	// CreateAccount atomically inserts the account together with an optional credential
	// record and an optional social identity. On success acct.ID, CreatedAt and UpdatedAt
	// are filled in. Nothing is persisted if any part fails.
	CreateAccount(ctx context.Context, acct *AccountIdentity, cred *CredentialRecord, social *SocialIdentity) error

	// GetAccountByEmail looks an account up by normalized email
	GetAccountByEmail(ctx context.Context, email string) (*AccountIdentity, error)

	// GetAccountByID looks an account up by its canonical id
	GetAccountByID(ctx context.Context, id string) (*AccountIdentity, error)

	// UpdateAccount saves mutable fields (name, role, language, verification)
	UpdateAccount(ctx context.Context, acct *AccountIdentity) error

	// GetCredential returns the credential record of an account
	GetCredential(ctx context.Context, accountID string) (*CredentialRecord, error)

	// GetSocialIdentity resolves a (provider, providerID) pair
	GetSocialIdentity(ctx context.Context, provider, providerID string) (*SocialIdentity, error)

	// LinkSocialIdentity attaches a new social identity to an existing account.
	// Returns ErrSocialIdentityTaken if the pair is already linked.
	LinkSocialIdentity(ctx context.Context, social *SocialIdentity) error

	// ListSocialIdentities returns all provider links of an account
	ListSocialIdentities(ctx context.Context, accountID string) ([]*SocialIdentity, error)
}

// StoredSession is the server-side record of the single active session of an account.
type StoredSession struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore keeps at most one active session per account.
type SessionStore interface {
	// PutSession replaces whatever session the account had (last write wins)
	PutSession(ctx context.Context, s *StoredSession) error

	// GetSession returns the active session of an account or ErrSessionNotFound
	GetSession(ctx context.Context, accountID string) (*StoredSession, error)

	// DeleteSession removes the account's session only if its id matches sessionID.
	// Deleting a missing or superseded session is not an error.
	DeleteSession(ctx context.Context, accountID, sessionID string) error
}
