// Package redis keeps the active session of each account in Redis, so every server
// instance sees the same "current session" record.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	ea "github.com/panyam/eventauth"
)

// deleteIfMatch removes KEYS[1] only when its stored session id equals ARGV[1]
var deleteIfMatch = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
local s = cjson.decode(v)
if s["id"] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore implements ea.SessionStore on Redis. Records expire with the session.
type SessionStore struct {
	client redis.UniversalClient
	prefix string

	// Now is used to compute record TTLs, defaults to time.Now
	Now func() time.Time
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: "session:", Now: time.Now}
}

func (r *SessionStore) key(accountID string) string {
	return r.prefix + accountID
}

func (r *SessionStore) PutSession(ctx context.Context, s *ea.StoredSession) error {
	if s.ID == "" || s.AccountID == "" {
		return fmt.Errorf("session: missing id or account_id")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	// keep already-expired records briefly so validation can still say "expired"
	ttl := s.ExpiresAt.Sub(now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return r.client.Set(ctx, r.key(s.AccountID), data, ttl).Err()
}

func (r *SessionStore) GetSession(ctx context.Context, accountID string) (*ea.StoredSession, error) {
	val, err := r.client.Get(ctx, r.key(accountID)).Result()
	if err == redis.Nil {
		return nil, ea.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var s ea.StoredSession
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

func (r *SessionStore) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	return deleteIfMatch.Run(ctx, r.client, []string{r.key(accountID)}, sessionID).Err()
}
