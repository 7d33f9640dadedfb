//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ea "github.com/panyam/eventauth"
)

var errAbortCreate = errors.New("abort create")

// ============================================================================
// AccountStore
// ============================================================================

// AccountStore implements ea.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{client: client, namespace: namespace}
}

func (s *AccountStore) nameKey(kind, name string, parent *datastore.Key) *datastore.Key {
	key := datastore.NameKey(kind, name, parent)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) accountKey(id string) (*datastore.Key, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return nil, false
	}
	key := datastore.IDKey(KindAccount, n, nil)
	key.Namespace = s.namespace
	return key, true
}

func (s *AccountStore) socialKey(provider, providerID string) *datastore.Key {
	return s.nameKey(KindSocialIdentity, provider+":"+providerID, nil)
}

func (s *AccountStore) CreateAccount(ctx context.Context, acct *ea.AccountIdentity, cred *ea.CredentialRecord, social *ea.SocialIdentity) error {
	email := ea.NormalizeEmail(acct.Email)

	incomplete := datastore.IncompleteKey(KindAccount, nil)
	incomplete.Namespace = s.namespace
	keys, err := s.client.AllocateIDs(ctx, []*datastore.Key{incomplete})
	if err != nil {
		return err
	}
	acctKey := keys[0]
	id, err := ea.CanonicalID(acctKey.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	entity := &AccountEntity{
		Key:               acctKey,
		Email:             email,
		Name:              acct.Name,
		Role:              string(acct.Role),
		PreferredLanguage: acct.PreferredLanguage,
		EmailVerified:     acct.EmailVerified,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	var conflict error
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		emailKey := s.nameKey(KindAccountEmail, email, nil)
		var idx AccountEmailEntity
		if err := tx.Get(emailKey, &idx); err == nil {
			conflict = ea.ErrEmailTaken
			return errAbortCreate
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}

		var socialKey *datastore.Key
		if social != nil {
			socialKey = s.socialKey(social.Provider, social.ProviderID)
			var existing SocialIdentityEntity
			if err := tx.Get(socialKey, &existing); err == nil {
				conflict = ea.ErrSocialIdentityTaken
				return errAbortCreate
			} else if err != datastore.ErrNoSuchEntity {
				return err
			}
		}

		if _, err := tx.Put(acctKey, entity); err != nil {
			return err
		}
		if _, err := tx.Put(emailKey, &AccountEmailEntity{AccountID: acctKey.ID, CreatedAt: now}); err != nil {
			return err
		}
		if cred != nil {
			credKey := s.nameKey(KindCredential, "password", acctKey)
			if _, err := tx.Put(credKey, &CredentialEntity{PasswordHash: cred.PasswordHash, CreatedAt: now}); err != nil {
				return err
			}
		}
		if social != nil {
			link := *social
			link.AccountID, link.LinkedAt = id, now
			if _, err := tx.Put(socialKey, SocialIdentityToEntity(&link)); err != nil {
				return err
			}
		}
		return nil
	})
	if conflict != nil {
		return conflict
	}
	if err != nil {
		return err
	}

	out, err := entity.ToAccount()
	if err != nil {
		return err
	}
	*acct = *out
	if cred != nil {
		cred.AccountID, cred.CreatedAt = id, now
	}
	if social != nil {
		social.AccountID, social.LinkedAt = id, now
	}
	return nil
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*ea.AccountIdentity, error) {
	var idx AccountEmailEntity
	if err := s.client.Get(ctx, s.nameKey(KindAccountEmail, ea.NormalizeEmail(email), nil), &idx); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, strconv.FormatInt(idx.AccountID, 10))
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*ea.AccountIdentity, error) {
	key, ok := s.accountKey(id)
	if !ok {
		return nil, ea.ErrAccountNotFound
	}
	var entity AccountEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount()
}

func (s *AccountStore) UpdateAccount(ctx context.Context, acct *ea.AccountIdentity) error {
	key, ok := s.accountKey(acct.ID)
	if !ok {
		return ea.ErrAccountNotFound
	}
	var entity AccountEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := tx.Get(key, &entity); err != nil {
			return err
		}
		entity.Name = acct.Name
		entity.Role = string(acct.Role)
		entity.PreferredLanguage = acct.PreferredLanguage
		entity.EmailVerified = acct.EmailVerified
		entity.UpdatedAt = time.Now()
		entity.Version++
		_, err := tx.Put(key, &entity)
		return err
	})
	if err == datastore.ErrNoSuchEntity {
		return ea.ErrAccountNotFound
	} else if err != nil {
		return err
	}
	entity.Key = key
	out, err := entity.ToAccount()
	if err != nil {
		return err
	}
	*acct = *out
	return nil
}

func (s *AccountStore) GetCredential(ctx context.Context, accountID string) (*ea.CredentialRecord, error) {
	acctKey, ok := s.accountKey(accountID)
	if !ok {
		return nil, ea.ErrCredentialNotFound
	}
	var entity CredentialEntity
	if err := s.client.Get(ctx, s.nameKey(KindCredential, "password", acctKey), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrCredentialNotFound
		}
		return nil, err
	}
	return &ea.CredentialRecord{AccountID: accountID, PasswordHash: entity.PasswordHash, CreatedAt: entity.CreatedAt}, nil
}

func (s *AccountStore) GetSocialIdentity(ctx context.Context, provider, providerID string) (*ea.SocialIdentity, error) {
	var entity SocialIdentityEntity
	if err := s.client.Get(ctx, s.socialKey(provider, providerID), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrSocialIdentityNotFound
		}
		return nil, err
	}
	return entity.ToSocialIdentity(), nil
}

func (s *AccountStore) LinkSocialIdentity(ctx context.Context, social *ea.SocialIdentity) error {
	if social.LinkedAt.IsZero() {
		social.LinkedAt = time.Now()
	}
	key := s.socialKey(social.Provider, social.ProviderID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing SocialIdentityEntity
		if err := tx.Get(key, &existing); err == nil {
			return ea.ErrSocialIdentityTaken
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}
		_, err := tx.Put(key, SocialIdentityToEntity(social))
		return err
	})
	return err
}

func (s *AccountStore) ListSocialIdentities(ctx context.Context, accountID string) ([]*ea.SocialIdentity, error) {
	query := datastore.NewQuery(KindSocialIdentity).
		FilterField("account_id", "=", accountID)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	out := []*ea.SocialIdentity{}
	it := s.client.Run(ctx, query)
	for {
		var entity SocialIdentityEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entity.ToSocialIdentity())
	}
	return out, nil
}

// ============================================================================
// SessionStore
// ============================================================================

// SessionStore implements ea.SessionStore using Google Cloud Datastore
type SessionStore struct {
	client    *datastore.Client
	namespace string
}

func NewSessionStore(client *datastore.Client, namespace string) *SessionStore {
	return &SessionStore{client: client, namespace: namespace}
}

func (s *SessionStore) key(accountID string) *datastore.Key {
	key := datastore.NameKey(KindSession, accountID, nil)
	key.Namespace = s.namespace
	return key
}

func (s *SessionStore) PutSession(ctx context.Context, session *ea.StoredSession) error {
	_, err := s.client.Put(ctx, s.key(session.AccountID), &SessionEntity{
		ID:        session.ID,
		Role:      string(session.Role),
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
	return err
}

func (s *SessionStore) GetSession(ctx context.Context, accountID string) (*ea.StoredSession, error) {
	var entity SessionEntity
	if err := s.client.Get(ctx, s.key(accountID), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrSessionNotFound
		}
		return nil, err
	}
	return &ea.StoredSession{
		ID:        entity.ID,
		AccountID: accountID,
		Role:      ea.Role(entity.Role),
		IssuedAt:  entity.IssuedAt,
		ExpiresAt: entity.ExpiresAt,
	}, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	key := s.key(accountID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity SessionEntity
		if err := tx.Get(key, &entity); err == datastore.ErrNoSuchEntity {
			return nil
		} else if err != nil {
			return err
		}
		if entity.ID != sessionID {
			return nil
		}
		return tx.Delete(key)
	})
	return err
}
