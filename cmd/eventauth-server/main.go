// Command eventauth-server serves the eventauth HTTP surface (and optionally a gRPC
// listener guarded by the session interceptors) from environment configuration.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	ea "github.com/panyam/eventauth"
	eagrpc "github.com/panyam/eventauth/grpc"
	"github.com/panyam/eventauth/oauth2"
	"github.com/panyam/eventauth/stores/fs"
	"github.com/panyam/eventauth/stores/gae"
	gormstore "github.com/panyam/eventauth/stores/gorm"
	redisstore "github.com/panyam/eventauth/stores/redis"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := ea.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, sessions, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer closeStores()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ea.NewMetrics(reg)

	role, _ := ea.ParseRole(cfg.DefaultRole)
	provisioner := ea.NewProvisioner(accounts, role)
	coordinator := ea.NewOAuthCoordinator(accounts, provisioner, providers(cfg)...)
	coordinator.ExchangeTimeout = cfg.ExchangeTimeout

	sessionManager := ea.NewSessionManager(accounts, sessions, cfg.JWTSecretKey, cfg.SessionTTL)
	sessionManager.Issuer = cfg.JWTIssuer

	clientSession := scs.New()
	clientSession.Cookie.Name = "eventauth_client"
	clientSession.Cookie.Secure = cfg.CookieSecure
	clientSession.Cookie.SameSite = http.SameSiteLaxMode
	clientSession.Lifetime = cfg.SessionTTL

	authHandler := &ea.AuthHandler{
		Provisioner:     provisioner,
		OAuth:           coordinator,
		Sessions:        sessionManager,
		Session:         clientSession,
		Metrics:         metrics,
		CookieName:      cfg.CookieName,
		CookieSecure:    cfg.CookieSecure,
		CookieDomains:   cfg.CookieDomains,
		LoginPath:       cfg.LoginPath,
		DefaultRedirect: cfg.DefaultRedirect,
	}
	authHandler.EnsureDefaults()

	r := mux.NewRouter()
	authHandler.Routes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           clientSession.LoadAndSave(r),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr, "providers", coordinator.Providers())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCListenAddr != "" {
		grpcServer = newGRPCServer(sessionManager)
		lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.GRPCListenAddr, err)
		}
		go func() {
			slog.Info("gRPC server listening", "addr", cfg.GRPCListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Fatalf("gRPC server error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	slog.Info("Server stopped gracefully")
}

// openStores picks the account store from config: Postgres when a DSN is set, Cloud
// Datastore when a project is set, files otherwise. Sessions go to redis when configured
// and to the account store's backend otherwise.
func openStores(ctx context.Context, cfg *ea.Config) (ea.AccountStore, ea.SessionStore, func(), error) {
	var (
		accounts ea.AccountStore
		sessions ea.SessionStore
		closers  []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch {
	case cfg.DatabaseDSN != "":
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, closeAll, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, closeAll, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { sqlDB.Close() })
		}
		accounts, sessions = gormstore.NewAccountStore(db), gormstore.NewSessionStore(db)
		slog.Info("Using postgres stores")
	case cfg.DatastoreProject != "":
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, closeAll, err
		}
		closers = append(closers, func() { client.Close() })
		accounts = gae.NewAccountStore(client, cfg.DatastoreNamespace)
		sessions = gae.NewSessionStore(client, cfg.DatastoreNamespace)
		slog.Info("Using datastore stores", "project", cfg.DatastoreProject)
	default:
		accounts, sessions = fs.NewFSAccountStore(cfg.DataDir), fs.NewFSSessionStore(cfg.DataDir)
		slog.Info("Using file stores", "dir", cfg.DataDir)
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		closers = append(closers, func() { client.Close() })
		sessions = redisstore.NewSessionStore(client)
		slog.Info("Using redis session store", "addr", cfg.RedisAddr)
	}
	return accounts, sessions, closeAll, nil
}

// providers returns the social login providers that have credentials configured
func providers(cfg *ea.Config) []ea.OAuthProvider {
	var out []ea.OAuthProvider
	if cfg.GoogleClientID != "" {
		out = append(out, oauth2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL("google")))
	}
	if cfg.GithubClientID != "" {
		out = append(out, oauth2.NewGithubOAuth2(cfg.GithubClientID, cfg.GithubClientSecret, cfg.CallbackURL("github")))
	}
	if cfg.AppleClientID != "" {
		out = append(out, oauth2.NewAppleOAuth2(cfg.AppleClientID, cfg.AppleClientSecret, cfg.CallbackURL("apple")))
	}
	return out
}

// newGRPCServer returns a gRPC server whose calls are authenticated against sessions.
// Host applications register their services on it; health checks stay public.
func newGRPCServer(sessions ea.SessionValidator) *grpc.Server {
	config := eagrpc.NewPublicMethodsConfig(sessions,
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	)
	s := grpc.NewServer(
		grpc.UnaryInterceptor(eagrpc.UnaryAuthInterceptor(config)),
		grpc.StreamInterceptor(eagrpc.StreamAuthInterceptor(config)),
	)
	healthpb.RegisterHealthServer(s, health.NewServer())
	return s
}
