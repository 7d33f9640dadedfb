package eventauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the minimum accepted password length at registration
const MinPasswordLength = 8

// Credentials represents an email/password pair presented at login
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CredentialsVerifier checks an email/password pair and returns the account it belongs to
type CredentialsVerifier func(ctx context.Context, email, password string) (*AccountIdentity, error)

// dummyHash is compared against when the email is unknown so that both failure paths
// perform one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("eventauth-dummy-password"), bcrypt.DefaultCost)

// HashPassword derives the stored form of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NewCredentialsVerifier creates a CredentialsVerifier from an account store.
//
// Unknown emails and wrong passwords fail identically with KindInvalidCredentials; the
// distinction is only logged. Storage failures surface as KindStorageUnavailable.
func NewCredentialsVerifier(store AccountStore) CredentialsVerifier {
	return func(ctx context.Context, email, password string) (*AccountIdentity, error) {
		email = NormalizeEmail(email)
		if email == "" || password == "" {
			return nil, NewAuthError(KindInvalidCredentials, "email and password required", "")
		}

		acct, err := store.GetAccountByEmail(ctx, email)
		if errors.Is(err, ErrAccountNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Debug("login rejected", "reason", "unknown_email")
			return nil, NewAuthError(KindInvalidCredentials, "unknown email", "")
		} else if err != nil {
			return nil, wrapError(KindStorageUnavailable, "account lookup failed", err)
		}

		cred, err := store.GetCredential(ctx, acct.ID)
		if errors.Is(err, ErrCredentialNotFound) {
			// social-only account: no password was ever set
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Debug("login rejected", "reason", "no_password", "account_id", acct.ID)
			return nil, NewAuthError(KindInvalidCredentials, "account has no password", "")
		} else if err != nil {
			return nil, wrapError(KindStorageUnavailable, "credential lookup failed", err)
		}

		if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
			slog.Debug("login rejected", "reason", "password_mismatch", "account_id", acct.ID)
			return nil, NewAuthError(KindInvalidCredentials, "password mismatch", "")
		}

		return canonicalAccount(acct)
	}
}

// canonicalAccount guarantees the identity crossing out of the storage boundary has a
// usable string id.
func canonicalAccount(acct *AccountIdentity) (*AccountIdentity, error) {
	if acct == nil {
		return nil, NewAuthError(KindStorageUnavailable, "store returned no account", "")
	}
	id, err := CanonicalID(acct.ID)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, "store returned invalid account id", err)
	}
	out := *acct
	out.ID = id
	out.Email = NormalizeEmail(out.Email)
	return &out, nil
}
