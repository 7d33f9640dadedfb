//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the eventauth account and session
// stores. It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - accounts: account identities, numeric autoincrement ids, unique email
//   - credentials: bcrypt password hashes, one per account
//   - social_identities: provider links, unique (provider, provider_id)
//   - sessions: the single active session of each account
//
// Account ids are numeric in the database and leave the store as their decimal string.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	accounts := gormstore.NewAccountStore(db)
//	sessions := gormstore.NewSessionStore(db)
package gorm
