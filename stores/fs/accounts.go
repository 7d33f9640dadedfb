package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	ea "github.com/panyam/eventauth"
)

// emailIndex maps a normalized email to its account
type emailIndex struct {
	Email     string `json:"email"`
	AccountID string `json:"account_id"`
}

// fsCredential is the on-disk form of a credential record. ea.CredentialRecord never
// serializes its hash, so it gets its own type here.
type fsCredential struct {
	AccountID    string    `json:"account_id"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// FSAccountStore stores accounts, credentials and social identities as JSON files:
//
//	accounts/<id>.json
//	emails/<email>.json            unique email index
//	credentials/<id>.json
//	social/<provider>/<providerId>.json
//
// Writes are serialized by a lock that readers share, so uniqueness holds within one
// process and a half-written account is never observed.
type FSAccountStore struct {
	StoragePath string

	// Now is used for timestamps, defaults to time.Now
	Now func() time.Time

	mu sync.RWMutex
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath, Now: time.Now}
}

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", safeName(id)+".json")
}

func (s *FSAccountStore) emailPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", safeName(email)+".json")
}

func (s *FSAccountStore) credentialPath(id string) string {
	return filepath.Join(s.StoragePath, "credentials", safeName(id)+".json")
}

func (s *FSAccountStore) socialPath(provider, providerID string) string {
	return filepath.Join(s.StoragePath, "social", safeName(provider), safeName(providerID)+".json")
}

func (s *FSAccountStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *FSAccountStore) CreateAccount(ctx context.Context, acct *ea.AccountIdentity, cred *ea.CredentialRecord, social *ea.SocialIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := ea.NormalizeEmail(acct.Email)
	if _, err := os.Stat(s.emailPath(email)); err == nil {
		return ea.ErrEmailTaken
	}
	if social != nil {
		if _, err := os.Stat(s.socialPath(social.Provider, social.ProviderID)); err == nil {
			return ea.ErrSocialIdentityTaken
		}
	}

	now := s.now()
	out := *acct
	out.ID = uuid.NewString()
	out.Email = email
	out.CreatedAt, out.UpdatedAt = now, now

	// the account file goes last so a failed create never leaves a reachable account
	written := []string{}
	rollback := func() {
		for _, p := range written {
			os.Remove(p)
		}
	}
	write := func(path string, v any) error {
		if err := writeJSON(path, v); err != nil {
			rollback()
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := write(s.emailPath(email), &emailIndex{Email: email, AccountID: out.ID}); err != nil {
		return err
	}
	if cred != nil {
		if err := write(s.credentialPath(out.ID), &fsCredential{AccountID: out.ID, PasswordHash: cred.PasswordHash, CreatedAt: now}); err != nil {
			return err
		}
		cred.AccountID, cred.CreatedAt = out.ID, now
	}
	if social != nil {
		link := *social
		link.AccountID, link.LinkedAt = out.ID, now
		if err := write(s.socialPath(social.Provider, social.ProviderID), &link); err != nil {
			return err
		}
		social.AccountID, social.LinkedAt = out.ID, now
	}
	if err := write(s.accountPath(out.ID), &out); err != nil {
		return err
	}
	*acct = out
	return nil
}

func (s *FSAccountStore) GetAccountByEmail(ctx context.Context, email string) (*ea.AccountIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var idx emailIndex
	if err := readJSON(s.emailPath(ea.NormalizeEmail(email)), &idx, ea.ErrAccountNotFound); err != nil {
		return nil, err
	}
	return s.getAccount(idx.AccountID)
}

func (s *FSAccountStore) GetAccountByID(ctx context.Context, id string) (*ea.AccountIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccount(id)
}

func (s *FSAccountStore) getAccount(id string) (*ea.AccountIdentity, error) {
	if id == "" {
		return nil, ea.ErrAccountNotFound
	}
	var acct ea.AccountIdentity
	if err := readJSON(s.accountPath(id), &acct, ea.ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *FSAccountStore) UpdateAccount(ctx context.Context, acct *ea.AccountIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getAccount(acct.ID)
	if err != nil {
		return err
	}
	// email is the index key and is not changed through updates
	updated := *acct
	updated.Email = existing.Email
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()
	if err := writeJSON(s.accountPath(acct.ID), &updated); err != nil {
		return err
	}
	*acct = updated
	return nil
}

func (s *FSAccountStore) GetCredential(ctx context.Context, accountID string) (*ea.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c fsCredential
	if err := readJSON(s.credentialPath(accountID), &c, ea.ErrCredentialNotFound); err != nil {
		return nil, err
	}
	return &ea.CredentialRecord{AccountID: c.AccountID, PasswordHash: c.PasswordHash, CreatedAt: c.CreatedAt}, nil
}

func (s *FSAccountStore) GetSocialIdentity(ctx context.Context, provider, providerID string) (*ea.SocialIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var si ea.SocialIdentity
	if err := readJSON(s.socialPath(provider, providerID), &si, ea.ErrSocialIdentityNotFound); err != nil {
		return nil, err
	}
	return &si, nil
}

func (s *FSAccountStore) LinkSocialIdentity(ctx context.Context, social *ea.SocialIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.socialPath(social.Provider, social.ProviderID)
	if _, err := os.Stat(path); err == nil {
		return ea.ErrSocialIdentityTaken
	}
	if _, err := s.getAccount(social.AccountID); err != nil {
		return err
	}
	if social.LinkedAt.IsZero() {
		social.LinkedAt = s.now()
	}
	return writeJSON(path, social)
}

func (s *FSAccountStore) ListSocialIdentities(ctx context.Context, accountID string) ([]*ea.SocialIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root := filepath.Join(s.StoragePath, "social")
	providers, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ea.SocialIdentity{}, nil
		}
		return nil, err
	}

	out := []*ea.SocialIdentity{}
	for _, p := range providers {
		if !p.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, p.Name()))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			var si ea.SocialIdentity
			if err := readJSON(filepath.Join(root, p.Name(), entry.Name()), &si, ea.ErrSocialIdentityNotFound); err != nil {
				if errors.Is(err, ea.ErrSocialIdentityNotFound) {
					continue
				}
				return nil, err
			}
			if si.AccountID == accountID {
				out = append(out, &si)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LinkedAt.Before(out[j].LinkedAt) })
	return out, nil
}
