//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the eventauth account and
// session stores. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Account: account identities, keyed by a Datastore-allocated numeric id
//   - AccountEmail: unique email index, keyed by the normalized email
//   - Credential: password hash, a child of its Account
//   - SocialIdentity: provider links, keyed by provider + ":" + provider id
//   - Session: the active session of an account, keyed by account id
//
// Uniqueness of emails and provider links is enforced inside Datastore transactions over
// the index entities.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accounts := gae.NewAccountStore(client, "")  // default namespace
//	sessions := gae.NewSessionStore(client, "tenant-123")
package gae
