package eventauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// DefaultSessionCookieName is the cookie carrying the session token
const DefaultSessionCookieName = "eventauth_session"

// oauthStateCookie holds the anti-forgery state of an OAuth redirect
const oauthStateCookie = "oauthstate"

// AuthHandler serves the /auth HTTP surface on top of the identity core
type AuthHandler struct {
	Verifier    CredentialsVerifier
	Provisioner *Provisioner
	OAuth       *OAuthCoordinator
	Sessions    *SessionManager

	// Session is the scs session the client auth cache is mirrored in
	Session *scs.SessionManager
	Metrics *Metrics

	CookieName    string
	CookieSecure  bool
	CookieDomains []string

	LoginPath       string
	DefaultRedirect string

	router *mux.Router
}

func (h *AuthHandler) EnsureDefaults() *AuthHandler {
	if h.CookieName == "" {
		h.CookieName = DefaultSessionCookieName
	}
	if h.LoginPath == "" {
		h.LoginPath = "/login"
	}
	if h.DefaultRedirect == "" {
		h.DefaultRedirect = DefaultRedirectTarget
	}
	if h.Session == nil {
		h.Session = scs.New()
		h.Session.Cookie.Name = "eventauth_client"
	}
	if h.Verifier == nil && h.Sessions != nil {
		h.Verifier = NewCredentialsVerifier(h.Sessions.Accounts)
	}
	return h
}

// CacheFor returns the client auth cache mirrored in the scs session of r. The request
// must have passed through Handler (or Session.LoadAndSave).
func (h *AuthHandler) CacheFor(r *http.Request) *ClientAuthCache {
	return NewClientAuthCache(NewSessionStorage(h.Session, r.Context()))
}

// Guard returns an access guard sharing this handler's cookie and client cache
func (h *AuthHandler) Guard(policy GuardPolicy) *Guard {
	h.EnsureDefaults()
	return (&Guard{
		Sessions:   h.Sessions,
		Policy:     policy,
		LoginPath:  h.LoginPath,
		CookieName: h.CookieName,
		CacheFor:   h.CacheFor,
		Metrics:    h.Metrics,
	}).EnsureDefaults()
}

// Routes registers the auth routes on r
func (h *AuthHandler) Routes(r *mux.Router) {
	h.EnsureDefaults()
	r.HandleFunc("/auth/login", h.onLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", h.onRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.onLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.onRefresh).Methods(http.MethodPost)
	r.Handle("/auth/me", h.Guard(RejectUnauthorized).Protect(http.HandlerFunc(h.onMe))).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}", h.onOAuthStart).Methods(http.MethodGet)
	// providers using response_mode=form_post call back with a POST
	r.HandleFunc("/auth/{provider}/callback", h.onOAuthCallback).Methods(http.MethodGet, http.MethodPost)
}

// Handler returns the auth surface wrapped in the scs session middleware
func (h *AuthHandler) Handler() http.Handler {
	h.EnsureDefaults()
	if h.router == nil {
		h.router = mux.NewRouter()
		h.Routes(h.router)
	}
	return h.Session.LoadAndSave(h.router)
}

func (h *AuthHandler) onLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, NewAuthError(KindInvalidCredentials, "unreadable login body", ""))
		return
	}
	identity, err := h.Verifier(r.Context(), creds.Email, creds.Password)
	h.Metrics.observeAttempt("password", err)
	if err != nil {
		if KindOf(err) == KindStorageUnavailable {
			slog.Error("login failed", "kind", KindOf(err), "err", err)
		}
		writeError(w, err)
		return
	}
	if _, err := h.startSession(w, r, identity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *AuthHandler) onRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, NewAuthError(KindInvalidInput, "Request body must be JSON or a form", ""))
		return
	}
	identity, err := h.Provisioner.Register(r.Context(), req)
	h.Metrics.observeAttempt("register", err)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.startSession(w, r, identity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

func (h *AuthHandler) onLogout(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r, h.CookieName)
	err := h.Sessions.Invalidate(r.Context(), token)
	h.Metrics.observeSession("invalidate", err)

	// client state goes even when the server side could not be reached
	h.CacheFor(r).Clear()
	h.setSessionCookie(w, nil)
	if err != nil {
		slog.Error("logout could not invalidate session", "kind", KindOf(err), "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) onRefresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.Refresh(r.Context(), TokenFromRequest(r, h.CookieName))
	h.Metrics.observeSession("refresh", err)
	if err != nil {
		if IsAuthFailure(err) {
			h.CacheFor(r).Clear()
		}
		writeError(w, err)
		return
	}
	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) onMe(w http.ResponseWriter, r *http.Request) {
	ref := AccountRefFromContext(r.Context())
	acct, err := h.Sessions.Accounts.GetAccountByID(r.Context(), ref.AccountID)
	if err != nil {
		writeError(w, wrapError(KindStorageUnavailable, "account lookup failed", err))
		return
	}
	identity, err := canonicalAccount(acct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// onOAuthStart redirects to the provider's consent page. A ?redirect= path is captured
// into the client cache for use once the callback completes.
func (h *AuthHandler) onOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	state := uuid.NewString()
	authURL, err := h.OAuth.AuthCodeURL(provider, state)
	if err != nil {
		slog.Warn("oauth start for unknown provider", "provider", provider)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown login provider", "code": "unknown_provider"})
		return
	}
	if target := r.URL.Query().Get("redirect"); target != "" {
		h.CacheFor(r).CaptureRedirectTarget(target)
	}
	sameSite := http.SameSiteLaxMode
	if h.CookieSecure {
		// form_post callbacks are cross-site POSTs, which Lax cookies do not survive
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: sameSite,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *AuthHandler) onOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	cache := h.CacheFor(r)

	attempt, err := h.OAuth.Begin(provider, "")
	if err == nil {
		err = h.checkState(w, r, r.FormValue("state"))
	}
	if err == nil {
		var su *SocialUser
		su, err = h.OAuth.Complete(r.Context(), attempt, r.FormValue("code"))
		if err == nil {
			_, err = h.startSession(w, r, su.Account)
		}
	}
	method := "oauth_unknown"
	if slices.Contains(h.OAuth.Providers(), provider) {
		method = "oauth_" + provider
	}
	h.Metrics.observeAttempt(method, err)
	if err != nil {
		slog.Warn("oauth callback failed", "provider", provider, "kind", KindOf(err), "err", err)
		cache.Clear()
		http.Redirect(w, r, h.LoginPath+"?error=auth_failed", http.StatusFound)
		return
	}
	http.Redirect(w, r, cache.ConsumeRedirectTarget(h.DefaultRedirect), http.StatusFound)
}

// checkState compares the callback state to the cookie set by onOAuthStart and expires
// the cookie either way.
func (h *AuthHandler) checkState(w http.ResponseWriter, r *http.Request, state string) error {
	c, err := r.Cookie(oauthStateCookie)
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1, Expires: time.Unix(0, 0)})
	if err != nil || c.Value == "" || c.Value != state {
		return NewAuthError(KindProviderExchangeFailed, "oauth state mismatch", "state")
	}
	return nil
}

// startSession issues a session for identity, sets the cookie and mirrors the identity
// into the client cache.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, identity *AccountIdentity) (*Session, error) {
	session, err := h.Sessions.Issue(r.Context(), identity)
	h.Metrics.observeSession("issue", err)
	if err != nil {
		return nil, err
	}
	if err := h.Session.RenewToken(r.Context()); err != nil {
		slog.Warn("could not renew client session token", "err", err)
	}
	h.setSessionCookie(w, session)
	if err := h.CacheFor(r).CacheIdentity(identity); err != nil {
		slog.Warn("could not cache identity", "account_id", identity.ID, "err", err)
	}
	return session, nil
}

// setSessionCookie sets (or with a nil session, expires) the session cookie on every
// configured domain.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *Session) {
	domains := h.CookieDomains
	if slices.Index(domains, "") < 0 {
		domains = append(slices.Clone(domains), "")
	}
	for _, domain := range domains {
		c := &http.Cookie{
			Name:     h.CookieName,
			Domain:   domain,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		}
		if session != nil {
			c.Value = session.Token
			c.Expires = session.ExpiresAt
			c.MaxAge = int(time.Until(session.ExpiresAt).Seconds())
			if c.MaxAge <= 0 {
				c.MaxAge = -1
			}
		} else {
			c.MaxAge = -1
			c.Expires = time.Unix(0, 0)
		}
		http.SetCookie(w, c)
	}
}

// decodeBody reads a JSON body, or form values for form posts
func decodeBody(r *http.Request, out any) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return err
		}
		switch v := out.(type) {
		case *Credentials:
			v.Email, v.Password = r.PostFormValue("email"), r.PostFormValue("password")
		case *RegisterRequest:
			v.Email, v.Password = r.PostFormValue("email"), r.PostFormValue("password")
			v.Name, v.PreferredLanguage = r.PostFormValue("name"), r.PostFormValue("preferredLanguage")
		default:
			return errors.New("unsupported form target")
		}
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("error writing response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(err), map[string]string{
		"error": PublicMessage(err),
		"code":  PublicCode(err),
	})
}
