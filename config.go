package eventauth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from EVENTAUTH_* environment variables
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// GRPCListenAddr enables the gRPC listener (with auth interceptors) when set
	GRPCListenAddr string `env:"GRPC_LISTEN_ADDR"`

	JWTSecretKey string        `env:"JWT_SECRET_KEY"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"eventauth"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	CookieName    string   `env:"COOKIE_NAME" envDefault:"eventauth_session"`
	CookieSecure  bool     `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomains []string `env:"COOKIE_DOMAINS" envSeparator:","`

	LoginPath       string `env:"LOGIN_PATH" envDefault:"/login"`
	DefaultRedirect string `env:"DEFAULT_REDIRECT" envDefault:"/dashboard"`
	DefaultRole     string `env:"DEFAULT_ROLE" envDefault:"sponsor"`

	ExchangeTimeout time.Duration `env:"EXCHANGE_TIMEOUT" envDefault:"10s"`

	// Storage: DatabaseDSN selects gorm/postgres, DatastoreProject selects Cloud Datastore,
	// otherwise accounts are kept in files under DataDir.
	DatabaseDSN        string `env:"DATABASE_DSN"`
	DatastoreProject   string `env:"DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"DATASTORE_NAMESPACE"`
	DataDir            string `env:"DATA_DIR" envDefault:"./data"`
	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	AppleClientID      string `env:"APPLE_CLIENT_ID"`
	AppleClientSecret  string `env:"APPLE_CLIENT_SECRET"`
}

// LoadConfig parses the environment into a Config and validates it
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "EVENTAUTH_"})
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no sane default
func (c *Config) Validate() error {
	if len(c.JWTSecretKey) < 32 {
		return fmt.Errorf("EVENTAUTH_JWT_SECRET_KEY must be at least 32 bytes")
	}
	if _, err := ParseRole(c.DefaultRole); err != nil {
		return fmt.Errorf("EVENTAUTH_DEFAULT_ROLE: %w", err)
	}
	if Role(c.DefaultRole) == RoleAdmin {
		return fmt.Errorf("EVENTAUTH_DEFAULT_ROLE cannot be admin")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("EVENTAUTH_SESSION_TTL must be positive")
	}
	if !IsLocalPath(c.LoginPath) || !IsLocalPath(c.DefaultRedirect) {
		return fmt.Errorf("login path and default redirect must be local paths")
	}
	return nil
}

// CallbackURL returns the OAuth callback URL of a provider
func (c *Config) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/auth/%s/callback", c.BaseURL, provider)
}
