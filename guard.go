package eventauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// GuardState is where a guarded request is in its authentication check
type GuardState int

const (
	// GuardLoading: validation has not finished. Nothing is rendered and no side
	// effects happen in this state.
	GuardLoading GuardState = iota
	GuardAuthenticated
	GuardUnauthenticated
)

func (s GuardState) String() string {
	switch s {
	case GuardLoading:
		return "loading"
	case GuardAuthenticated:
		return "authenticated"
	case GuardUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// GuardPolicy decides what happens to unauthenticated requests
type GuardPolicy int

const (
	// AllowAnonymous lets the request through without an account
	AllowAnonymous GuardPolicy = iota
	// RedirectToLogin captures the current path and redirects to the login page
	RedirectToLogin
	// RejectUnauthorized answers 401, for API surfaces
	RejectUnauthorized
)

type accountRefKey struct{}

// AccountRefFromContext returns the account admitted by a Guard, if any
func AccountRefFromContext(ctx context.Context) *AccountRef {
	ref, _ := ctx.Value(accountRefKey{}).(*AccountRef)
	return ref
}

// WithAccountRef returns a context carrying ref
func WithAccountRef(ctx context.Context, ref *AccountRef) context.Context {
	return context.WithValue(ctx, accountRefKey{}, ref)
}

// Decision is the outcome of evaluating a request
type Decision struct {
	State GuardState
	Ref   *AccountRef
	Err   error // why the request is unauthenticated, if a token was presented

	// RedirectTo is set when the policy requires sending the user to log in
	RedirectTo string
}

// Admit reports whether the guarded operation may proceed as an authenticated caller
func (d Decision) Admit() bool { return d.State == GuardAuthenticated && d.Ref != nil }

// Guard gates routes on the Session Manager's view of the request
type Guard struct {
	Sessions SessionValidator
	Policy   GuardPolicy

	// LoginPath is the redirect target for RedirectToLogin, defaults to /login
	LoginPath string

	// CookieName is the session cookie; the Authorization bearer header is also accepted
	CookieName string

	// CacheFor returns the client auth cache of a request, may be nil
	CacheFor func(r *http.Request) *ClientAuthCache

	// Metrics is optional
	Metrics *Metrics
}

func (g *Guard) EnsureDefaults() *Guard {
	if g.LoginPath == "" {
		g.LoginPath = "/login"
	}
	if g.CookieName == "" {
		g.CookieName = DefaultSessionCookieName
	}
	return g
}

// TokenFromRequest returns the bearer token of a request, header first then cookie
func TokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Evaluate runs the guard state machine for a request. It performs the side effects of
// the final state (clearing a stale client cache, capturing the redirect target) but
// writes nothing to the response. Errors that are not auth failures leave the client
// cache alone.
func (g *Guard) Evaluate(r *http.Request) Decision {
	g.EnsureDefaults()
	d := Decision{State: GuardLoading}

	token := TokenFromRequest(r, g.CookieName)
	if token != "" {
		ref, err := g.Sessions.Validate(r.Context(), token)
		if err == nil {
			d.State, d.Ref = GuardAuthenticated, ref
			g.Metrics.observeGuard(d.State)
			return d
		}
		d.Err = err
		if IsAuthFailure(err) {
			slog.Debug("guard rejected session", "kind", KindOf(err), "path", r.URL.Path)
		} else {
			slog.Warn("guard could not validate session", "kind", KindOf(err), "err", err)
		}
	}

	d.State = GuardUnauthenticated
	if d.Err != nil && !IsAuthFailure(d.Err) {
		// the session may still be good; keep the client's copy and answer unavailable
		g.Metrics.observeGuard(d.State)
		return d
	}
	var cache *ClientAuthCache
	if g.CacheFor != nil {
		cache = g.CacheFor(r)
	}
	if cache != nil && token != "" {
		// the server no longer recognizes this client's session
		cache.Clear()
	}
	if g.Policy == RedirectToLogin {
		target := r.URL.Path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		if cache != nil {
			cache.CaptureRedirectTarget(target)
		}
		d.RedirectTo = g.LoginPath
		if cache == nil && IsLocalPath(target) {
			d.RedirectTo += "?redirect=" + url.QueryEscape(target)
		}
	}
	g.Metrics.observeGuard(d.State)
	return d
}

// Protect is the middleware form of the guard
func (g *Guard) Protect(next http.Handler) http.Handler {
	g.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		switch {
		case d.Admit():
			next.ServeHTTP(w, r.WithContext(WithAccountRef(r.Context(), d.Ref)))
		case d.Err != nil && !IsAuthFailure(d.Err):
			writeError(w, d.Err)
		case g.Policy == AllowAnonymous:
			next.ServeHTTP(w, r)
		case g.Policy == RedirectToLogin:
			http.Redirect(w, r, d.RedirectTo, http.StatusFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "Please log in again",
				"code":  "unauthenticated",
			})
		}
	})
}

// RequireRole wraps a guarded handler and only admits the given roles. It must sit
// behind Protect.
func RequireRole(next http.Handler, roles ...Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := AccountRefFromContext(r.Context())
		if ref == nil {
			http.Error(w, `{"error": "Please log in again"}`, http.StatusUnauthorized)
			return
		}
		for _, role := range roles {
			if ref.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, `{"error": "Forbidden"}`, http.StatusForbidden)
	})
}
