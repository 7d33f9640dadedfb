// Package eventauth is the identity and session core of an organizer/sponsor marketplace.
//
// It authenticates users by email and password or by social login (OAuth authorization
// code), keeps exactly one canonical account per email no matter how the user logged in,
// issues and validates sessions, and reconciles the copy of "who is logged in" that
// clients keep with what the server knows.
//
// # Architecture
//
// Account: an AccountIdentity with an opaque string ID, a normalized email and a Role
// (sponsor, organizer or admin). An account may have a password (CredentialRecord) and
// any number of SocialIdentity links, one per (provider, provider id) pair.
//
// Session: a signed HS256 token naming the account and its role. The SessionStore keeps
// the one active session of each account, so logging in again supersedes earlier tokens
// and logging out revokes them.
//
// Client cache: a ClientAuthCache over a ClientStorage holds a non-authoritative copy of
// the current identity plus a one-shot "return here after login" path.
//
// # Basic Usage
//
// Pick stores for accounts and sessions:
//
//	import (
//	    ea "github.com/panyam/eventauth"
//	    "github.com/panyam/eventauth/oauth2"
//	    "github.com/panyam/eventauth/stores/fs"
//	)
//
//	accounts := fs.NewFSAccountStore("/path/to/storage")
//	sessions := fs.NewFSSessionStore("/path/to/storage")
//
// Build the core components and serve the /auth routes:
//
//	provisioner := ea.NewProvisioner(accounts, ea.RoleSponsor)
//	handler := &ea.AuthHandler{
//	    Provisioner: provisioner,
//	    OAuth: ea.NewOAuthCoordinator(accounts, provisioner,
//	        oauth2.NewGoogleOAuth2(clientID, clientSecret, "https://yourapp.com/auth/google/callback")),
//	    Sessions: ea.NewSessionManager(accounts, sessions, secretKey, 24*time.Hour),
//	}
//	http.Handle("/auth/", handler.Handler())
//
// Protect application routes with a guard:
//
//	dashboard := handler.Guard(ea.RedirectToLogin).Protect(dashboardHandler)
//
// # Store Implementations
//
// stores/fs keeps JSON files and suits development. stores/gorm (Postgres) and
// stores/gae (Cloud Datastore) are the production account stores, and stores/redis keeps
// sessions with a TTL.
//
// # Security
//
// Passwords are hashed using bcrypt with default cost. Unknown emails and wrong
// passwords are indistinguishable from outside, including in timing. Error responses
// only carry PublicMessage and PublicCode; the internal kind goes to logs and metrics.
package eventauth
