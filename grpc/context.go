// Package grpc carries eventauth sessions over gRPC: clients send the session token as
// bearer metadata and the interceptors validate it with the Session Manager.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	ea "github.com/panyam/eventauth"
)

// DefaultMetadataKeyAuthorization is the default gRPC metadata key for the bearer token
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key holding "Bearer <token>".
	// Defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// TokenFromContext extracts the session token from incoming metadata.
// Returns empty string if none was sent.
func TokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthorization) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok && token != "" {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// TokenToOutgoingContext adds the session token to outgoing gRPC context metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// AccountFromContext returns the account admitted by the interceptors, or nil.
func AccountFromContext(ctx context.Context) *ea.AccountRef {
	return ea.AccountRefFromContext(ctx)
}

// IsAuthenticated returns true if the interceptors admitted an account for this call.
func IsAuthenticated(ctx context.Context) bool {
	return AccountFromContext(ctx) != nil
}
