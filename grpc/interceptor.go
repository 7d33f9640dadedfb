package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ea "github.com/panyam/eventauth"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Sessions validates presented tokens. Required.
	Sessions ea.SessionValidator

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but AccountFromContext returns nil.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// MethodRoles restricts methods to the listed roles
	MethodRoles map[string][]ea.Role
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(sessions ea.SessionValidator) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Sessions:      sessions,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
		MethodRoles:   make(map[string][]ea.Role),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(sessions ea.SessionValidator, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(sessions)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(sessions ea.SessionValidator) *InterceptorConfig {
	config := DefaultInterceptorConfig(sessions)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

// authenticate validates the call's token and returns the context the handler runs with.
// Storage failures are Unavailable; every other rejection is the same Unauthenticated.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	required := c.RequireAuth && !c.PublicMethods[method]

	token := TokenFromContext(ctx, c.Config)
	if token == "" || c.Sessions == nil {
		if required {
			return nil, status.Error(codes.Unauthenticated, "please log in again")
		}
		return ctx, nil
	}

	ref, err := c.Sessions.Validate(ctx, token)
	if err != nil {
		if !ea.IsAuthFailure(err) {
			slog.Error("grpc session validation failed", "method", method, "kind", ea.KindOf(err), "err", err)
			return nil, status.Error(codes.Unavailable, "service temporarily unavailable")
		}
		slog.Debug("grpc session rejected", "method", method, "kind", ea.KindOf(err))
		if required {
			return nil, status.Error(codes.Unauthenticated, "please log in again")
		}
		return ctx, nil
	}

	if roles, ok := c.MethodRoles[method]; ok && len(roles) > 0 {
		allowed := false
		for _, r := range roles {
			if r == ref.Role {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
	}
	return ea.WithAccountRef(ctx, ref), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that validates the session token.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authStream overrides the context of a server stream
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }

// StreamAuthInterceptor returns a gRPC stream interceptor that validates the session token.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}
