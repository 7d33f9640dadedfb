package eventauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ea "github.com/panyam/eventauth"
)

func TestVerifier_ValidCredentials(t *testing.T) {
	accounts, _ := setupStores(t)
	registered := registerAccount(t, accounts, "sponsor@example.com", "password123")

	verify := ea.NewCredentialsVerifier(accounts)
	identity, err := verify(context.Background(), "  Sponsor@Example.COM ", "password123")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.ID == "" || identity.ID != registered.ID {
		t.Errorf("ID = %q, want %q", identity.ID, registered.ID)
	}
	if identity.Email != "sponsor@example.com" {
		t.Errorf("Email = %q, want normalized", identity.Email)
	}
}

func TestVerifier_FailuresAreIndistinguishable(t *testing.T) {
	accounts, _ := setupStores(t)
	registerAccount(t, accounts, "known@example.com", "password123")
	verify := ea.NewCredentialsVerifier(accounts)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "unknown@example.com", "password123"},
		{"wrong password", "known@example.com", "wrong-password"},
		{"empty email", "", "password123"},
		{"empty password", "known@example.com", ""},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := verify(ctx, tt.email, tt.password)
			if identity != nil {
				t.Errorf("expected no identity, got %+v", identity)
			}
			if !errors.Is(err, ea.ErrInvalidCredentials) {
				t.Fatalf("error = %v, want InvalidCredentials", err)
			}
			if got := ea.HTTPStatus(err); got != 401 {
				t.Errorf("HTTPStatus = %d, want 401", got)
			}
			messages = append(messages, ea.PublicMessage(err)+"|"+ea.PublicCode(err))
		})
	}
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Errorf("public failure %q differs from %q", m, messages[0])
		}
	}
}

func TestVerifier_SocialOnlyAccountHasNoPassword(t *testing.T) {
	accounts, _ := setupStores(t)
	now := time.Now()
	acct := &ea.AccountIdentity{Email: "social@example.com", Role: ea.RoleSponsor, CreatedAt: now, UpdatedAt: now}
	social := &ea.SocialIdentity{Provider: "google", ProviderID: "g-1", Email: acct.Email, LinkedAt: now}
	if err := accounts.CreateAccount(context.Background(), acct, nil, social); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	_, err := ea.NewCredentialsVerifier(accounts)(context.Background(), "social@example.com", "anything-goes")
	if !errors.Is(err, ea.ErrInvalidCredentials) {
		t.Errorf("error = %v, want InvalidCredentials", err)
	}
}

func TestVerifier_StorageUnavailable(t *testing.T) {
	accounts, _ := setupStores(t)
	registerAccount(t, accounts, "a@example.com", "password123")

	for _, op := range []string{"GetAccountByEmail", "GetCredential"} {
		t.Run(op, func(t *testing.T) {
			flaky := newFlakyAccounts(accounts)
			flaky.failOn(op, errBackendDown)

			_, err := ea.NewCredentialsVerifier(flaky)(context.Background(), "a@example.com", "password123")
			if !errors.Is(err, ea.ErrStorageUnavailable) {
				t.Fatalf("error = %v, want StorageUnavailable", err)
			}
			if !errors.Is(err, errBackendDown) {
				t.Errorf("error should wrap the backend cause, got %v", err)
			}
			if ea.PublicMessage(err) == "Invalid credentials" {
				t.Error("storage failures must not be reported as bad credentials")
			}
		})
	}
}

// numericIDStore hands back identities whose ids look like they came from a numeric key
type numericIDStore struct {
	ea.AccountStore
	id string
}

func (s *numericIDStore) GetAccountByEmail(ctx context.Context, email string) (*ea.AccountIdentity, error) {
	acct, err := s.AccountStore.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	out := *acct
	out.ID = s.id
	return &out, nil
}

func (s *numericIDStore) GetCredential(ctx context.Context, accountID string) (*ea.CredentialRecord, error) {
	acct, err := s.AccountStore.GetAccountByEmail(ctx, "a@example.com")
	if err != nil {
		return nil, err
	}
	return s.AccountStore.GetCredential(ctx, acct.ID)
}

func TestVerifier_EmptyStoreIDIsStorageFailure(t *testing.T) {
	accounts, _ := setupStores(t)
	registerAccount(t, accounts, "a@example.com", "password123")

	_, err := ea.NewCredentialsVerifier(&numericIDStore{AccountStore: accounts, id: "  "})(context.Background(), "a@example.com", "password123")
	if !errors.Is(err, ea.ErrStorageUnavailable) {
		t.Errorf("error = %v, want StorageUnavailable", err)
	}
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		in      any
		want    string
		wantErr bool
	}{
		{"abc", "abc", false},
		{" 12 ", "12", false},
		{int64(42), "42", false},
		{uint64(7), "7", false},
		{float64(3), "3", false},
		{float64(3.5), "", true},
		{0, "", true},
		{"", "", true},
		{struct{}{}, "", true},
	}
	for _, tt := range tests {
		got, err := ea.CanonicalID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalID(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalID(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
