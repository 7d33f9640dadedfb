package eventauth_test

import (
	"sync"
	"testing"

	ea "github.com/panyam/eventauth"
)

func TestClientCache_IdentityRoundTrip(t *testing.T) {
	cache := ea.NewClientAuthCache(ea.NewMemoryStorage())
	if _, ok := cache.CurrentIdentity(); ok {
		t.Fatal("empty cache reports an identity")
	}

	in := &ea.AccountIdentity{ID: "12", Email: "a@example.com", Role: ea.RoleOrganizer, Name: "A"}
	if err := cache.CacheIdentity(in); err != nil {
		t.Fatalf("CacheIdentity() error = %v", err)
	}
	got, ok := cache.CurrentIdentity()
	if !ok || got.ID != "12" || got.Role != ea.RoleOrganizer || got.Name != "A" {
		t.Errorf("CurrentIdentity() = %+v, %v", got, ok)
	}

	cache.Clear()
	if _, ok := cache.CurrentIdentity(); ok {
		t.Error("identity survives Clear()")
	}
}

func TestClientCache_CorruptEntryIsDropped(t *testing.T) {
	storage := ea.NewMemoryStorage()
	storage.Set(ea.ClientKeyUser, "{not json")
	cache := ea.NewClientAuthCache(storage)

	if _, ok := cache.CurrentIdentity(); ok {
		t.Error("corrupt entry reported as an identity")
	}
	if _, ok := storage.Get(ea.ClientKeyUser); ok {
		t.Error("corrupt entry should be removed")
	}
}

func TestClientCache_RedirectTargetIsOneShot(t *testing.T) {
	cache := ea.NewClientAuthCache(ea.NewMemoryStorage())

	if got := cache.ConsumeRedirectTarget("/dashboard"); got != "/dashboard" {
		t.Errorf("nothing captured: got %q, want default", got)
	}
	if !cache.CaptureRedirectTarget("/events/7?tab=sponsors") {
		t.Fatal("CaptureRedirectTarget() rejected a local path")
	}
	if got := cache.ConsumeRedirectTarget("/dashboard"); got != "/events/7?tab=sponsors" {
		t.Errorf("first consume = %q", got)
	}
	if got := cache.ConsumeRedirectTarget("/dashboard"); got != "/dashboard" {
		t.Errorf("second consume = %q, want default", got)
	}
}

func TestClientCache_RejectsForeignRedirects(t *testing.T) {
	cache := ea.NewClientAuthCache(ea.NewMemoryStorage())
	for _, target := range []string{"https://evil.example.com", "//evil.example.com/x", "/\\evil.example.com", "events", "", "/ok\r\nSet-Cookie: x"} {
		if cache.CaptureRedirectTarget(target) {
			t.Errorf("CaptureRedirectTarget(%q) accepted", target)
		}
	}
	if got := cache.ConsumeRedirectTarget("/dashboard"); got != "/dashboard" {
		t.Errorf("consume = %q, want default", got)
	}
}

func TestClientCache_ConcurrentConsumeSingleWinner(t *testing.T) {
	cache := ea.NewClientAuthCache(ea.NewMemoryStorage())
	cache.CaptureRedirectTarget("/events/1")

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.ConsumeRedirectTarget("/dashboard")
		}(i)
	}
	wg.Wait()

	hits := 0
	for _, r := range results {
		if r == "/events/1" {
			hits++
		}
	}
	if hits != 1 {
		t.Errorf("captured target consumed %d times, want 1", hits)
	}
}

func TestClientCache_MigrateLegacyFormat(t *testing.T) {
	legacy := `{"id":"5","email":"old@example.com","role":"sponsor"}`

	t.Run("legacy only", func(t *testing.T) {
		storage := ea.NewMemoryStorage()
		storage.Set(ea.ClientKeyLegacyUser, legacy)
		cache := ea.NewClientAuthCache(storage)

		if !cache.MigrateLegacyFormat() {
			t.Fatal("expected a migration")
		}
		got, ok := cache.CurrentIdentity()
		if !ok || got.ID != "5" {
			t.Errorf("CurrentIdentity() = %+v, %v", got, ok)
		}
		if cache.MigrateLegacyFormat() {
			t.Error("second migration should be a no-op")
		}
	})

	t.Run("current wins", func(t *testing.T) {
		storage := ea.NewMemoryStorage()
		storage.Set(ea.ClientKeyLegacyUser, legacy)
		cache := ea.NewClientAuthCache(storage)
		cache.CacheIdentity(&ea.AccountIdentity{ID: "9", Email: "new@example.com", Role: ea.RoleSponsor})

		if cache.MigrateLegacyFormat() {
			t.Error("migration must not overwrite a current entry")
		}
		if got, _ := cache.CurrentIdentity(); got.ID != "9" {
			t.Errorf("CurrentIdentity().ID = %q, want 9", got.ID)
		}
	})

	t.Run("clear removes legacy too", func(t *testing.T) {
		storage := ea.NewMemoryStorage()
		storage.Set(ea.ClientKeyLegacyUser, legacy)
		cache := ea.NewClientAuthCache(storage)
		cache.MigrateLegacyFormat()

		cache.Clear()
		if cache.MigrateLegacyFormat() {
			t.Error("a cleared identity came back through migration")
		}
		if _, ok := cache.CurrentIdentity(); ok {
			t.Error("identity present after Clear()")
		}
	})
}

func TestIsLocalPath(t *testing.T) {
	tests := map[string]bool{
		"/":                true,
		"/events?x=1":      true,
		"//evil.com":       false,
		"http://evil.com":  false,
		"javascript:alert": false,
		"relative":         false,
		"/a\nb":            false,
	}
	for p, want := range tests {
		if got := ea.IsLocalPath(p); got != want {
			t.Errorf("IsLocalPath(%q) = %v, want %v", p, got, want)
		}
	}
}
