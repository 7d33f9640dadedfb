package fs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	ea "github.com/panyam/eventauth"
	"github.com/panyam/eventauth/stores/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSAccountStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())

	acct := &ea.AccountIdentity{Email: "  Alice@Example.COM ", Name: "Alice", Role: ea.RoleSponsor}
	cred := &ea.CredentialRecord{PasswordHash: "$2a$10$hash"}
	require.NoError(t, store.CreateAccount(ctx, acct, cred, nil))
	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, "alice@example.com", acct.Email)
	assert.False(t, acct.CreatedAt.IsZero())

	byEmail, err := store.GetAccountByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byEmail.ID)

	byID, err := store.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Name)

	gotCred, err := store.GetCredential(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$hash", gotCred.PasswordHash)

	_, err = store.GetAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ea.ErrAccountNotFound)
	_, err = store.GetCredential(ctx, "missing")
	assert.ErrorIs(t, err, ea.ErrCredentialNotFound)
}

func TestFSAccountStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())

	require.NoError(t, store.CreateAccount(ctx, &ea.AccountIdentity{Email: "dup@example.com", Role: ea.RoleSponsor}, nil, nil))
	err := store.CreateAccount(ctx, &ea.AccountIdentity{Email: "DUP@example.com", Role: ea.RoleSponsor}, nil, nil)
	assert.ErrorIs(t, err, ea.ErrEmailTaken)
}

func TestFSAccountStore_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.CreateAccount(ctx, &ea.AccountIdentity{Email: "race@example.com", Role: ea.RoleSponsor}, &ea.CredentialRecord{PasswordHash: "h"}, nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ea.ErrEmailTaken)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestFSAccountStore_SocialIdentities(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())

	acct := &ea.AccountIdentity{Email: "s@example.com", Role: ea.RoleOrganizer}
	social := &ea.SocialIdentity{Provider: "google", ProviderID: "g-1", Email: "s@example.com"}
	require.NoError(t, store.CreateAccount(ctx, acct, nil, social))
	assert.Equal(t, acct.ID, social.AccountID)

	got, err := store.GetSocialIdentity(ctx, "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.AccountID)

	err = store.LinkSocialIdentity(ctx, &ea.SocialIdentity{Provider: "google", ProviderID: "g-1", AccountID: acct.ID})
	assert.ErrorIs(t, err, ea.ErrSocialIdentityTaken)

	require.NoError(t, store.LinkSocialIdentity(ctx, &ea.SocialIdentity{Provider: "apple", ProviderID: "a/../1", AccountID: acct.ID}))
	links, err := store.ListSocialIdentities(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = store.GetSocialIdentity(ctx, "github", "x")
	assert.ErrorIs(t, err, ea.ErrSocialIdentityNotFound)
}

func TestFSAccountStore_UpdateKeepsEmail(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSAccountStore(t.TempDir())

	acct := &ea.AccountIdentity{Email: "u@example.com", Role: ea.RoleSponsor}
	require.NoError(t, store.CreateAccount(ctx, acct, nil, nil))

	update := *acct
	update.Role = ea.RoleOrganizer
	update.Email = "other@example.com"
	require.NoError(t, store.UpdateAccount(ctx, &update))

	got, err := store.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, ea.RoleOrganizer, got.Role)
	assert.Equal(t, "u@example.com", got.Email)
}

func TestFSSessionStore_ReplaceAndDeleteIfMatch(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSSessionStore(t.TempDir())
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.PutSession(ctx, &ea.StoredSession{ID: "s1", AccountID: "a1", Role: ea.RoleSponsor, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.PutSession(ctx, &ea.StoredSession{ID: "s2", AccountID: "a1", Role: ea.RoleSponsor, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	got, err := store.GetSession(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)

	// superseded id does not delete the live session
	require.NoError(t, store.DeleteSession(ctx, "a1", "s1"))
	_, err = store.GetSession(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "a1", "s2"))
	_, err = store.GetSession(ctx, "a1")
	assert.ErrorIs(t, err, ea.ErrSessionNotFound)

	require.NoError(t, store.DeleteSession(ctx, "nobody", "x"))
}
