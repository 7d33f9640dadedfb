package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ea "github.com/panyam/eventauth"
	"github.com/panyam/eventauth/stores/redis"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.SessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, redis.NewSessionStore(client)
}

func TestSessionStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	_, store := setupRedis(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, store.PutSession(ctx, &ea.StoredSession{ID: "s1", AccountID: "a1", Role: ea.RoleSponsor, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.PutSession(ctx, &ea.StoredSession{ID: "s2", AccountID: "a1", Role: ea.RoleSponsor, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	got, err := store.GetSession(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
	assert.Equal(t, ea.RoleSponsor, got.Role)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
}

func TestSessionStore_DeleteOnlyMatchingSession(t *testing.T) {
	ctx := context.Background()
	_, store := setupRedis(t)
	now := time.Now()

	require.NoError(t, store.PutSession(ctx, &ea.StoredSession{ID: "live", AccountID: "a1", Role: ea.RoleOrganizer, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	require.NoError(t, store.DeleteSession(ctx, "a1", "stale"))
	_, err := store.GetSession(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "a1", "live"))
	_, err = store.GetSession(ctx, "a1")
	assert.ErrorIs(t, err, ea.ErrSessionNotFound)

	// deleting nothing is fine
	require.NoError(t, store.DeleteSession(ctx, "a1", "live"))
}

func TestSessionStore_RecordsExpire(t *testing.T) {
	ctx := context.Background()
	mr, store := setupRedis(t)
	now := time.Now()

	require.NoError(t, store.PutSession(ctx, &ea.StoredSession{ID: "s1", AccountID: "a1", Role: ea.RoleSponsor, IssuedAt: now, ExpiresAt: now.Add(time.Minute)}))
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL("session:a1").Seconds(), 2)

	mr.FastForward(2 * time.Minute)
	_, err := store.GetSession(ctx, "a1")
	assert.ErrorIs(t, err, ea.ErrSessionNotFound)
}

func TestSessionStore_StorageErrorsSurface(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := redis.NewSessionStore(client)
	mr.Close()

	_, err = store.GetSession(ctx, "a1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ea.ErrSessionNotFound)
}
