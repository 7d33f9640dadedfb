package eventauth

import (
	"context"

	"github.com/alexedwards/scs/v2"
)

// SessionStorage is a ClientStorage kept in the scs server-side session of one request.
// It is how the HTTP surface mirrors the client auth cache: the browser only holds the scs
// cookie, and each request gets its own view bound to its context.
type SessionStorage struct {
	sm  *scs.SessionManager
	ctx context.Context
}

// NewSessionStorage binds an scs session manager to a request context
func NewSessionStorage(sm *scs.SessionManager, ctx context.Context) *SessionStorage {
	return &SessionStorage{sm: sm, ctx: ctx}
}

func (s *SessionStorage) Get(key string) (string, bool) {
	if !s.sm.Exists(s.ctx, key) {
		return "", false
	}
	return s.sm.GetString(s.ctx, key), true
}

func (s *SessionStorage) Set(key, value string) {
	s.sm.Put(s.ctx, key, value)
}

func (s *SessionStorage) Remove(key string) {
	s.sm.Remove(s.ctx, key)
}

// Pop relies on scs.PopString, which reads and deletes under the session's own lock
func (s *SessionStorage) Pop(key string) (string, bool) {
	if !s.sm.Exists(s.ctx, key) {
		return "", false
	}
	return s.sm.PopString(s.ctx, key), true
}
