package eventauth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ea "github.com/panyam/eventauth"
)

// fakeClock is a settable clock for session expiry tests
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func setupSessions(t *testing.T, ttl time.Duration) (*ea.SessionManager, ea.AccountStore, *ea.AccountIdentity, *fakeClock) {
	t.Helper()
	accounts, sessions := setupStores(t)
	identity := registerAccount(t, accounts, "session@example.com", "password123")
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := ea.NewSessionManager(accounts, sessions, testSecret, ttl)
	m.Now = clock.Now
	return m, accounts, identity, clock
}

func TestSession_IssueAndValidate(t *testing.T) {
	m, _, identity, clock := setupSessions(t, time.Hour)
	ctx := context.Background()

	s, err := m.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if s.AccountID != identity.ID || s.Role != identity.Role {
		t.Errorf("session = %v", s)
	}
	if !s.ExpiresAt.Equal(clock.now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, clock.now.Add(time.Hour))
	}
	if s.Token == "" || s.ID == "" {
		t.Fatal("expected a token and an id")
	}

	ref, err := m.Validate(ctx, s.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if ref.AccountID != identity.ID || ref.Role != ea.RoleSponsor || ref.SessionID != s.ID {
		t.Errorf("ref = %+v", ref)
	}
}

func TestSession_Expiry(t *testing.T) {
	m, _, identity, clock := setupSessions(t, time.Hour)
	ctx := context.Background()
	s, _ := m.Issue(ctx, identity)

	clock.now = clock.now.Add(59 * time.Minute)
	if _, err := m.Validate(ctx, s.Token); err != nil {
		t.Errorf("Validate() before expiry error = %v", err)
	}
	clock.now = clock.now.Add(time.Minute)
	if _, err := m.Validate(ctx, s.Token); !errors.Is(err, ea.ErrSessionExpired) {
		t.Errorf("Validate() at expiry error = %v, want SessionExpired", err)
	}
}

func TestSession_ZeroHorizonIsImmediatelyExpired(t *testing.T) {
	accounts, sessions := setupStores(t)
	identity := registerAccount(t, accounts, "zero@example.com", "password123")
	m := (&ea.SessionManager{Accounts: accounts, Sessions: sessions, SecretKey: []byte(testSecret), ZeroTTL: true}).EnsureDefaults()

	s, err := m.Issue(context.Background(), identity)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := m.Validate(context.Background(), s.Token); !errors.Is(err, ea.ErrSessionExpired) {
		t.Errorf("Validate() error = %v, want SessionExpired", err)
	}
}

func TestSession_NewerSessionSupersedes(t *testing.T) {
	m, _, identity, _ := setupSessions(t, time.Hour)
	ctx := context.Background()

	first, _ := m.Issue(ctx, identity)
	second, _ := m.Issue(ctx, identity)

	if _, err := m.Validate(ctx, first.Token); !errors.Is(err, ea.ErrSessionUnknown) {
		t.Errorf("Validate(first) error = %v, want SessionUnknown", err)
	}
	if _, err := m.Validate(ctx, second.Token); err != nil {
		t.Errorf("Validate(second) error = %v", err)
	}

	// invalidating the superseded token must not end the newer session
	if err := m.Invalidate(ctx, first.Token); err != nil {
		t.Errorf("Invalidate(first) error = %v", err)
	}
	if _, err := m.Validate(ctx, second.Token); err != nil {
		t.Errorf("Validate(second) after stale invalidate error = %v", err)
	}
}

func TestSession_Invalidate(t *testing.T) {
	m, _, identity, clock := setupSessions(t, time.Hour)
	ctx := context.Background()
	s, _ := m.Issue(ctx, identity)

	if err := m.Invalidate(ctx, s.Token); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := m.Validate(ctx, s.Token); !errors.Is(err, ea.ErrSessionUnknown) {
		t.Errorf("Validate() after invalidate error = %v, want SessionUnknown", err)
	}
	if err := m.Invalidate(ctx, s.Token); err != nil {
		t.Errorf("second Invalidate() error = %v", err)
	}

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if err := m.Invalidate(ctx, token); err != nil {
			t.Errorf("Invalidate(%q) error = %v, want nil", token, err)
		}
	}

	// expired tokens can still be logged out
	expired, _ := m.Issue(ctx, identity)
	clock.now = clock.now.Add(2 * time.Hour)
	if err := m.Invalidate(ctx, expired.Token); err != nil {
		t.Errorf("Invalidate(expired) error = %v", err)
	}
}

func TestSession_MalformedTokens(t *testing.T) {
	m, _, identity, clock := setupSessions(t, time.Hour)
	ctx := context.Background()
	good, _ := m.Issue(ctx, identity)

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	validClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":  identity.ID,
			"jti":  good.ID,
			"role": "sponsor",
			"iss":  "eventauth",
			"iat":  clock.now.Unix(),
			"exp":  clock.now.Add(time.Hour).Unix(),
		}
	}
	withClaim := func(key string, value any) jwt.MapClaims {
		c := validClaims()
		if value == nil {
			delete(c, key)
		} else {
			c[key] = value
		}
		return c
	}

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"truncated":      good.Token[:len(good.Token)-5],
		"wrong key":      sign(jwt.SigningMethodHS256, []byte("another-secret-key-of-32-bytes!!"), validClaims()),
		"wrong alg":      sign(jwt.SigningMethodHS512, []byte(testSecret), validClaims()),
		"alg none":       sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims()),
		"missing sub":    sign(jwt.SigningMethodHS256, []byte(testSecret), withClaim("sub", nil)),
		"missing jti":    sign(jwt.SigningMethodHS256, []byte(testSecret), withClaim("jti", nil)),
		"missing exp":    sign(jwt.SigningMethodHS256, []byte(testSecret), withClaim("exp", nil)),
		"wrong issuer":   sign(jwt.SigningMethodHS256, []byte(testSecret), withClaim("iss", "someone-else")),
		"unknown role":   sign(jwt.SigningMethodHS256, []byte(testSecret), withClaim("role", "root")),
		"role not a str": sign(jwt.SigningMethodHS256, []byte(testSecret), withClaim("role", 42)),
		"huge":           strings.Repeat("A", 1<<16),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			ref, err := m.Validate(ctx, token)
			if ref != nil {
				t.Errorf("expected no ref, got %+v", ref)
			}
			if !errors.Is(err, ea.ErrSessionMalformed) {
				t.Errorf("error = %v, want SessionMalformed", err)
			}
		})
	}
}

func TestSession_RoleChangeNeedsReissue(t *testing.T) {
	m, accounts, identity, _ := setupSessions(t, time.Hour)
	ctx := context.Background()
	s, _ := m.Issue(ctx, identity)

	if _, err := ea.NewProvisioner(accounts, ea.RoleSponsor).SetRole(ctx, identity.ID, ea.RoleOrganizer); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}

	ref, err := m.Validate(ctx, s.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if ref.Role != ea.RoleSponsor {
		t.Errorf("Role = %q, want the issued role until re-issue", ref.Role)
	}

	refreshed, err := m.Refresh(ctx, s.Token)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.Role != ea.RoleOrganizer {
		t.Errorf("refreshed Role = %q, want organizer", refreshed.Role)
	}
	if _, err := m.Validate(ctx, s.Token); !errors.Is(err, ea.ErrSessionUnknown) {
		t.Errorf("old token after refresh error = %v, want SessionUnknown", err)
	}
}

func TestSession_MissingAccountIsUnknown(t *testing.T) {
	accounts, sessions := setupStores(t)
	m := ea.NewSessionManager(accounts, sessions, testSecret, time.Hour)
	ghost := &ea.AccountIdentity{ID: "ghost", Email: "ghost@example.com", Role: ea.RoleSponsor}

	s, err := m.Issue(context.Background(), ghost)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := m.Validate(context.Background(), s.Token); !errors.Is(err, ea.ErrSessionUnknown) {
		t.Errorf("Validate() error = %v, want SessionUnknown", err)
	}
	if _, err := m.Issue(context.Background(), &ea.AccountIdentity{}); err == nil {
		t.Error("Issue() without an account id should fail")
	}
}

func TestSession_StorageUnavailable(t *testing.T) {
	accounts, sessions := setupStores(t)
	identity := registerAccount(t, accounts, "a@example.com", "password123")
	flaky := &flakySessions{SessionStore: sessions}
	m := ea.NewSessionManager(accounts, flaky, testSecret, time.Hour)
	ctx := context.Background()

	s, err := m.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	flaky.err = errBackendDown
	if _, err := m.Issue(ctx, identity); !errors.Is(err, ea.ErrStorageUnavailable) {
		t.Errorf("Issue() error = %v, want StorageUnavailable", err)
	}
	if _, err := m.Validate(ctx, s.Token); !errors.Is(err, ea.ErrStorageUnavailable) {
		t.Errorf("Validate() error = %v, want StorageUnavailable", err)
	}
	err = m.Invalidate(ctx, s.Token)
	if !errors.Is(err, ea.ErrStorageUnavailable) {
		t.Errorf("Invalidate() error = %v, want StorageUnavailable", err)
	}
	if ea.IsAuthFailure(err) {
		t.Error("storage failures are not authentication failures")
	}

	flaky.err = nil
	if _, err := m.Validate(ctx, s.Token); err != nil {
		t.Errorf("Validate() after recovery error = %v", err)
	}
}
