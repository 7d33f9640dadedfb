package eventauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an issued session stays valid
const DefaultSessionTTL = 24 * time.Hour

// Session is an issued proof of authentication
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"-"`
}

// AccountRef is what a validated session tells about the caller
type AccountRef struct {
	AccountID string
	Role      Role
	SessionID string
	ExpiresAt time.Time
}

// sessionClaims are the JWT claims of a session token
type sessionClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionValidator is the read side of the SessionManager, used by guards
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*AccountRef, error)
}

// SessionManager issues, validates and invalidates session tokens. It keeps exactly one
// active session per account: the token is a signed JWT and the SessionStore remembers
// which token id is current.
type SessionManager struct {
	Accounts AccountStore
	Sessions SessionStore

	SecretKey []byte
	Issuer    string

	// TTL is the expiry horizon. Zero means DefaultSessionTTL unless ZeroTTL is set,
	// in which case sessions are expired as soon as they are issued.
	TTL     time.Duration
	ZeroTTL bool

	// Now is the clock used for issuance and validation, defaults to time.Now
	Now func() time.Time
}

// NewSessionManager creates a SessionManager with the given signing key and horizon
func NewSessionManager(accounts AccountStore, sessions SessionStore, secretKey string, ttl time.Duration) *SessionManager {
	m := &SessionManager{
		Accounts:  accounts,
		Sessions:  sessions,
		SecretKey: []byte(secretKey),
		TTL:       ttl,
	}
	return m.EnsureDefaults()
}

func (m *SessionManager) EnsureDefaults() *SessionManager {
	if m.TTL <= 0 && !m.ZeroTTL {
		m.TTL = DefaultSessionTTL
	}
	if m.ZeroTTL {
		m.TTL = 0
	}
	if m.Issuer == "" {
		m.Issuer = "eventauth"
	}
	if m.Now == nil {
		m.Now = time.Now
	}
	return m
}

// Issue creates a new session for identity, replacing any earlier session of the account.
// The role is taken from identity as it is now and stays fixed for the session's life.
func (m *SessionManager) Issue(ctx context.Context, identity *AccountIdentity) (*Session, error) {
	m.EnsureDefaults()
	if identity == nil || identity.ID == "" {
		return nil, NewAuthError(KindSessionUnknown, "cannot issue a session without an account id", "")
	}
	if len(m.SecretKey) == 0 {
		return nil, NewAuthError(KindStorageUnavailable, "session signing key not configured", "")
	}

	// jwt NumericDate has second precision, so work in whole seconds throughout
	now := m.Now().Truncate(time.Second)
	s := &Session{
		ID:        uuid.NewString(),
		AccountID: identity.ID,
		Role:      identity.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.TTL),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   s.AccountID,
			Issuer:    m.Issuer,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	})
	tokenString, err := token.SignedString(m.SecretKey)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, "error signing session token", err)
	}
	s.Token = tokenString

	if err := m.Sessions.PutSession(ctx, &StoredSession{
		ID:        s.ID,
		AccountID: s.AccountID,
		Role:      s.Role,
		IssuedAt:  s.IssuedAt,
		ExpiresAt: s.ExpiresAt,
	}); err != nil {
		return nil, wrapError(KindStorageUnavailable, "session store write failed", err)
	}
	slog.Debug("session issued", "account_id", s.AccountID, "session_id", s.ID, "expires_at", s.ExpiresAt)
	return s, nil
}

// Validate checks a bearer token. It never panics on hostile input: anything that is not a
// well-formed token signed by us is reported as KindSessionMalformed.
func (m *SessionManager) Validate(ctx context.Context, tokenString string) (*AccountRef, error) {
	m.EnsureDefaults()
	claims, err := m.parse(tokenString, true)
	if err != nil {
		return nil, err
	}

	stored, err := m.Sessions.GetSession(ctx, claims.Subject)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, NewAuthError(KindSessionUnknown, "no active session for account", "")
	} else if err != nil {
		return nil, wrapError(KindStorageUnavailable, "session store read failed", err)
	}
	if stored.ID != claims.ID {
		return nil, NewAuthError(KindSessionUnknown, "session superseded or logged out", "")
	}
	if !m.Now().Before(stored.ExpiresAt) {
		return nil, NewAuthError(KindSessionExpired, "session expired", "")
	}

	if _, err := m.Accounts.GetAccountByID(ctx, claims.Subject); errors.Is(err, ErrAccountNotFound) {
		return nil, NewAuthError(KindSessionUnknown, "session references a missing account", "")
	} else if err != nil {
		return nil, wrapError(KindStorageUnavailable, "account lookup failed", err)
	}

	return &AccountRef{
		AccountID: claims.Subject,
		Role:      claims.Role,
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Invalidate ends the session behind a token. Unknown, malformed, expired or superseded
// tokens are a no-op; only storage failures are reported.
func (m *SessionManager) Invalidate(ctx context.Context, tokenString string) error {
	m.EnsureDefaults()
	claims, err := m.parse(tokenString, false)
	if err != nil {
		return nil
	}
	if err := m.Sessions.DeleteSession(ctx, claims.Subject, claims.ID); err != nil {
		return wrapError(KindStorageUnavailable, "session store delete failed", err)
	}
	slog.Debug("session invalidated", "account_id", claims.Subject, "session_id", claims.ID)
	return nil
}

// Refresh re-issues a session from the account as it is now, which is how role changes
// reach the caller.
func (m *SessionManager) Refresh(ctx context.Context, tokenString string) (*Session, error) {
	ref, err := m.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	acct, err := m.Accounts.GetAccountByID(ctx, ref.AccountID)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, "account lookup failed", err)
	}
	return m.Issue(ctx, acct)
}

func (m *SessionManager) parse(tokenString string, validateClaims bool) (*sessionClaims, error) {
	if tokenString == "" {
		return nil, NewAuthError(KindSessionMalformed, "empty token", "")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.Now),
	}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.SecretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, wrapError(KindSessionExpired, "session expired", err)
		}
		return nil, wrapError(KindSessionMalformed, "unparseable session token", err)
	}
	if !token.Valid {
		return nil, NewAuthError(KindSessionMalformed, "invalid session token", "")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, NewAuthError(KindSessionMalformed, "session token missing subject or id", "")
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, wrapError(KindSessionMalformed, "session token has an unknown role", err)
	}
	return claims, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s, account=%s, role=%s, expires=%s)", s.ID, s.AccountID, s.Role, s.ExpiresAt.Format(time.RFC3339))
}
