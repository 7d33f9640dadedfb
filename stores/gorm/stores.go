//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ea "github.com/panyam/eventauth"
)

// AutoMigrate runs database migrations for all eventauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&CredentialModel{},
		&SocialIdentityModel{},
		&SessionModel{},
	)
}

// isDuplicateKey recognizes unique violations, translated (gorm.Config.TranslateError) or not
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// =============================================================================
// AccountStore
// =============================================================================

// AccountStore implements ea.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, acct *ea.AccountIdentity, cred *ea.CredentialRecord, social *ea.SocialIdentity) error {
	model := &AccountModel{
		Email:             ea.NormalizeEmail(acct.Email),
		Name:              acct.Name,
		Role:              string(acct.Role),
		PreferredLanguage: acct.PreferredLanguage,
		EmailVerified:     acct.EmailVerified,
	}
	var credModel *CredentialModel
	var socialModel *SocialIdentityModel

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if cred != nil {
			credModel = &CredentialModel{AccountID: model.ID, PasswordHash: cred.PasswordHash}
			if err := tx.Create(credModel).Error; err != nil {
				return err
			}
		}
		if social != nil {
			socialModel = &SocialIdentityModel{
				Provider:    social.Provider,
				ProviderID:  social.ProviderID,
				AccountID:   model.ID,
				Email:       social.Email,
				ProfileData: social.ProfileData,
			}
			if err := tx.Create(socialModel).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKey(err) {
			return s.classifyConflict(ctx, model.Email)
		}
		return err
	}

	out, err := model.ToAccount()
	if err != nil {
		return err
	}
	*acct = *out
	if credModel != nil {
		cred.AccountID, cred.CreatedAt = out.ID, credModel.CreatedAt
	}
	if socialModel != nil {
		social.AccountID, social.LinkedAt = out.ID, socialModel.LinkedAt
	}
	return nil
}

// classifyConflict tells which unique constraint a failed create ran into
func (s *AccountStore) classifyConflict(ctx context.Context, email string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&AccountModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ea.ErrEmailTaken
	}
	return ea.ErrSocialIdentityTaken
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*ea.AccountIdentity, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", ea.NormalizeEmail(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ea.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount()
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*ea.AccountIdentity, error) {
	key, ok := parseAccountID(id)
	if !ok {
		return nil, ea.ErrAccountNotFound
	}
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ea.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount()
}

func (s *AccountStore) UpdateAccount(ctx context.Context, acct *ea.AccountIdentity) error {
	key, ok := parseAccountID(acct.ID)
	if !ok {
		return ea.ErrAccountNotFound
	}
	res := s.db.WithContext(ctx).Model(&AccountModel{ID: key}).Updates(map[string]any{
		"name":               acct.Name,
		"role":               string(acct.Role),
		"preferred_language": acct.PreferredLanguage,
		"email_verified":     acct.EmailVerified,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ea.ErrAccountNotFound
	}
	updated, err := s.GetAccountByID(ctx, acct.ID)
	if err != nil {
		return err
	}
	*acct = *updated
	return nil
}

func (s *AccountStore) GetCredential(ctx context.Context, accountID string) (*ea.CredentialRecord, error) {
	key, ok := parseAccountID(accountID)
	if !ok {
		return nil, ea.ErrCredentialNotFound
	}
	var model CredentialModel
	if err := s.db.WithContext(ctx).First(&model, "account_id = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ea.ErrCredentialNotFound
		}
		return nil, err
	}
	return &ea.CredentialRecord{AccountID: accountID, PasswordHash: model.PasswordHash, CreatedAt: model.CreatedAt}, nil
}

func (s *AccountStore) GetSocialIdentity(ctx context.Context, provider, providerID string) (*ea.SocialIdentity, error) {
	var model SocialIdentityModel
	if err := s.db.WithContext(ctx).First(&model, "provider = ? AND provider_id = ?", provider, providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ea.ErrSocialIdentityNotFound
		}
		return nil, err
	}
	return model.ToSocialIdentity(), nil
}

func (s *AccountStore) LinkSocialIdentity(ctx context.Context, social *ea.SocialIdentity) error {
	key, ok := parseAccountID(social.AccountID)
	if !ok {
		return ea.ErrAccountNotFound
	}
	model := &SocialIdentityModel{
		Provider:    social.Provider,
		ProviderID:  social.ProviderID,
		AccountID:   key,
		Email:       social.Email,
		ProfileData: social.ProfileData,
		LinkedAt:    social.LinkedAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return ea.ErrSocialIdentityTaken
		}
		return err
	}
	social.LinkedAt = model.LinkedAt
	return nil
}

func (s *AccountStore) ListSocialIdentities(ctx context.Context, accountID string) ([]*ea.SocialIdentity, error) {
	key, ok := parseAccountID(accountID)
	if !ok {
		return []*ea.SocialIdentity{}, nil
	}
	var models []SocialIdentityModel
	if err := s.db.WithContext(ctx).Where("account_id = ?", key).Order("linked_at").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*ea.SocialIdentity, len(models))
	for i := range models {
		out[i] = models[i].ToSocialIdentity()
	}
	return out, nil
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements ea.SessionStore using GORM
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) PutSession(ctx context.Context, session *ea.StoredSession) error {
	model := &SessionModel{
		AccountID: session.AccountID,
		ID:        session.ID,
		Role:      string(session.Role),
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "role", "issued_at", "expires_at"}),
	}).Create(model).Error
}

func (s *SessionStore) GetSession(ctx context.Context, accountID string) (*ea.StoredSession, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ea.ErrSessionNotFound
		}
		return nil, err
	}
	return model.ToStoredSession(), nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("account_id = ? AND id = ?", accountID, sessionID).
		Delete(&SessionModel{}).Error
}
