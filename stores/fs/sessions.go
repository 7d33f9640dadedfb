package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	ea "github.com/panyam/eventauth"
)

// FSSessionStore keeps the active session of each account in sessions/<accountId>.json
type FSSessionStore struct {
	StoragePath string
	mu          sync.Mutex
}

func NewFSSessionStore(storagePath string) *FSSessionStore {
	return &FSSessionStore{StoragePath: storagePath}
}

func (s *FSSessionStore) sessionPath(accountID string) string {
	return filepath.Join(s.StoragePath, "sessions", safeName(accountID)+".json")
}

func (s *FSSessionStore) PutSession(ctx context.Context, session *ea.StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.sessionPath(session.AccountID), session)
}

func (s *FSSessionStore) GetSession(ctx context.Context, accountID string) (*ea.StoredSession, error) {
	var session ea.StoredSession
	if err := readJSON(s.sessionPath(accountID), &session, ea.ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *FSSessionStore) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetSession(ctx, accountID)
	if err == ea.ErrSessionNotFound {
		return nil
	} else if err != nil {
		return err
	}
	if current.ID != sessionID {
		return nil
	}
	if err := os.Remove(s.sessionPath(accountID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
