package eventauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ea "github.com/panyam/eventauth"
	"github.com/panyam/eventauth/stores/fs"
)

const testSecret = "test-secret-key-that-is-32-bytes!"

var errBackendDown = errors.New("backend down")

// setupStores returns file stores rooted in a fresh temp dir
func setupStores(t *testing.T) (*fs.FSAccountStore, *fs.FSSessionStore) {
	t.Helper()
	dir := t.TempDir()
	return fs.NewFSAccountStore(dir), fs.NewFSSessionStore(dir)
}

// registerAccount creates a password account and fails the test on error
func registerAccount(t *testing.T, accounts ea.AccountStore, email, password string) *ea.AccountIdentity {
	t.Helper()
	identity, err := ea.NewProvisioner(accounts, ea.RoleSponsor).Register(context.Background(), ea.RegisterRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	return identity
}

// flakyAccounts wraps an AccountStore and fails the named operations
type flakyAccounts struct {
	ea.AccountStore
	mu   sync.Mutex
	fail map[string]error

	// beforeCreate runs before CreateAccount reaches the wrapped store
	beforeCreate func()
}

func newFlakyAccounts(store ea.AccountStore) *flakyAccounts {
	return &flakyAccounts{AccountStore: store, fail: map[string]error{}}
}

func (f *flakyAccounts) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *flakyAccounts) errFor(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *flakyAccounts) CreateAccount(ctx context.Context, acct *ea.AccountIdentity, cred *ea.CredentialRecord, social *ea.SocialIdentity) error {
	if err := f.errFor("CreateAccount"); err != nil {
		return err
	}
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	return f.AccountStore.CreateAccount(ctx, acct, cred, social)
}

func (f *flakyAccounts) GetAccountByEmail(ctx context.Context, email string) (*ea.AccountIdentity, error) {
	if err := f.errFor("GetAccountByEmail"); err != nil {
		return nil, err
	}
	return f.AccountStore.GetAccountByEmail(ctx, email)
}

func (f *flakyAccounts) GetAccountByID(ctx context.Context, id string) (*ea.AccountIdentity, error) {
	if err := f.errFor("GetAccountByID"); err != nil {
		return nil, err
	}
	return f.AccountStore.GetAccountByID(ctx, id)
}

func (f *flakyAccounts) GetCredential(ctx context.Context, accountID string) (*ea.CredentialRecord, error) {
	if err := f.errFor("GetCredential"); err != nil {
		return nil, err
	}
	return f.AccountStore.GetCredential(ctx, accountID)
}

func (f *flakyAccounts) GetSocialIdentity(ctx context.Context, provider, providerID string) (*ea.SocialIdentity, error) {
	if err := f.errFor("GetSocialIdentity"); err != nil {
		return nil, err
	}
	return f.AccountStore.GetSocialIdentity(ctx, provider, providerID)
}

// flakySessions wraps a SessionStore and fails every operation while err is set
type flakySessions struct {
	ea.SessionStore
	err error
}

func (f *flakySessions) PutSession(ctx context.Context, s *ea.StoredSession) error {
	if f.err != nil {
		return f.err
	}
	return f.SessionStore.PutSession(ctx, s)
}

func (f *flakySessions) GetSession(ctx context.Context, accountID string) (*ea.StoredSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.SessionStore.GetSession(ctx, accountID)
}

func (f *flakySessions) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	if f.err != nil {
		return f.err
	}
	return f.SessionStore.DeleteSession(ctx, accountID, sessionID)
}

// fakeProvider is an OAuthProvider returning a canned profile
type fakeProvider struct {
	name    string
	profile *ea.SocialProfile
	err     error
	delay   time.Duration

	mu    sync.Mutex
	codes []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/authorize?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*ea.SocialProfile, error) {
	p.mu.Lock()
	p.codes = append(p.codes, code)
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	out := *p.profile
	return &out, nil
}

func (p *fakeProvider) exchanges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.codes)
}
