package eventauth

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// Client storage keys
const (
	ClientKeyUser        = "user"
	ClientKeyLegacyUser  = "currentUser"
	ClientKeyRedirectURL = "redirectUrl"
)

// DefaultRedirectTarget is where a user lands after login when no target was captured
const DefaultRedirectTarget = "/dashboard"

// ClientStorage is the client-side key/value persistence the auth cache lives in
// (browser local storage, a server-side session mirror, a file for CLI clients).
type ClientStorage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)

	// Pop returns the value of key and removes it as one atomic step
	Pop(key string) (string, bool)
}

// ClientAuthCache is the non-authoritative client copy of the logged-in account plus the
// one-shot "return here after login" marker. It never holds secrets.
type ClientAuthCache struct {
	Storage ClientStorage
}

// NewClientAuthCache wraps a storage
func NewClientAuthCache(storage ClientStorage) *ClientAuthCache {
	return &ClientAuthCache{Storage: storage}
}

// CacheIdentity overwrites the cached current-user record
func (c *ClientAuthCache) CacheIdentity(identity *AccountIdentity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	c.Storage.Set(ClientKeyUser, string(data))
	return nil
}

// CurrentIdentity returns the cached identity. A corrupt entry is dropped.
func (c *ClientAuthCache) CurrentIdentity() (*AccountIdentity, bool) {
	raw, ok := c.Storage.Get(ClientKeyUser)
	if !ok || raw == "" {
		return nil, false
	}
	var identity AccountIdentity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil || identity.ID == "" {
		slog.Warn("dropping unreadable cached identity", "err", err)
		c.Storage.Remove(ClientKeyUser)
		return nil, false
	}
	return &identity, true
}

// Clear removes the cached identity. The legacy key goes too, otherwise the next
// MigrateLegacyFormat would bring a logged-out identity back.
func (c *ClientAuthCache) Clear() {
	c.Storage.Remove(ClientKeyUser)
	c.Storage.Remove(ClientKeyLegacyUser)
}

// CaptureRedirectTarget remembers the path a user was denied, for use after login.
// Only same-origin absolute paths are kept.
func (c *ClientAuthCache) CaptureRedirectTarget(path string) bool {
	if !IsLocalPath(path) {
		return false
	}
	c.Storage.Set(ClientKeyRedirectURL, path)
	return true
}

// ConsumeRedirectTarget returns the captured path and clears it in the same step, or
// defaultPath when nothing (usable) was captured. A second call always yields defaultPath.
func (c *ClientAuthCache) ConsumeRedirectTarget(defaultPath string) string {
	path, ok := c.Storage.Pop(ClientKeyRedirectURL)
	if !ok || !IsLocalPath(path) {
		return defaultPath
	}
	return path
}

// MigrateLegacyFormat copies a legacy-format identity into the current key when only the
// legacy one exists. A current entry always wins. Safe to call on every startup.
func (c *ClientAuthCache) MigrateLegacyFormat() bool {
	if current, ok := c.Storage.Get(ClientKeyUser); ok && current != "" {
		return false
	}
	legacy, ok := c.Storage.Get(ClientKeyLegacyUser)
	if !ok || legacy == "" {
		return false
	}
	c.Storage.Set(ClientKeyUser, legacy)
	return true
}

// IsLocalPath reports whether p is a path on this origin ("/x", not "//host" or "http://")
func IsLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	return !strings.ContainsAny(p, "\r\n")
}

// MemoryStorage is an in-process ClientStorage
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
}

func (m *MemoryStorage) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

func (m *MemoryStorage) Pop(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	delete(m.values, key)
	return v, ok
}
