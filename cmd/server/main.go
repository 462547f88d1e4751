package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/identityhub/internal/handler"
	"github.com/aryan0dhankhar/identityhub/internal/infrastructure/logger"
	redisinfra "github.com/aryan0dhankhar/identityhub/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/identityhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/identityhub/internal/observability/tracing"
	"github.com/aryan0dhankhar/identityhub/internal/reliability/retry"
	"github.com/aryan0dhankhar/identityhub/internal/repository"
	"github.com/aryan0dhankhar/identityhub/internal/respond"
	"github.com/aryan0dhankhar/identityhub/internal/security/audit"
	"github.com/aryan0dhankhar/identityhub/internal/security/cipher"
	"github.com/aryan0dhankhar/identityhub/internal/security/middleware"
	"github.com/aryan0dhankhar/identityhub/internal/security/ratelimit"
	"github.com/aryan0dhankhar/identityhub/internal/security/throttle"
	"github.com/aryan0dhankhar/identityhub/internal/security/token"
	"github.com/aryan0dhankhar/identityhub/internal/service"
	"github.com/aryan0dhankhar/identityhub/internal/worker"
	"github.com/aryan0dhankhar/identityhub/pkg/cache"
	"github.com/aryan0dhankhar/identityhub/pkg/config"
	"github.com/aryan0dhankhar/identityhub/pkg/database"
)

func main() {
	// 1. Load configuration. Missing secrets are fatal here, before any
	// listener is opened.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting identityhub server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, "identityhub", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Connect dependencies, retrying while they come up
	retryCfg := retry.DefaultConfig()

	db, err := retry.Do(ctx, retryCfg, log, "connect postgres", func(ctx context.Context) (*database.ConnectionPool, error) {
		return database.Connect(ctx, &database.Config{
			Host:     cfg.DatabaseHost,
			Port:     cfg.DatabasePort,
			User:     cfg.DatabaseUser,
			Password: cfg.DatabasePassword,
			Database: cfg.DatabaseName,
			SSLMode:  cfg.DatabaseSSLMode,
		}, log)
	})
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := retry.Do(ctx, retryCfg, log, "connect redis", func(ctx context.Context) (*redisinfra.Client, error) {
		return redisinfra.NewClient(cfg.RedisURL)
	})
	if err != nil {
		log.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 5. Build the security components
	credCipher, err := cipher.New(cfg.SecurityKey, cfg.ScryptCost)
	if err != nil {
		log.Error("failed to initialize credential cipher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tokens, err := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err != nil {
		log.Error("failed to initialize token manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signinThrottle := throttle.New(redisClient, cfg.SigninMaxAttempts, cfg.SigninWindow, log)
	limiter := ratelimit.NewLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	defer limiter.Stop()
	auditLog := audit.NewLogger(log)

	// 6. Repositories and services
	directory := repository.NewPostgresUserDirectory(db.DB(), log)
	if err := directory.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", slog.String("error", err.Error()))
		os.Exit(1)
	}
	identity := service.NewIdentityService(directory, credCipher, tokens, signinThrottle, log)

	// 7. Handlers
	identityHandler := handler.NewIdentityHandler(identity, auditLog, log)
	usersHandler := handler.NewUsersHandler(directory, identity, credCipher, cache.New(), log)
	healthHandler := handler.NewHealthHandler(db, redisClient, log)

	authorize := middleware.Authorize(tokens, log)

	// 8. Routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health/liveness", healthHandler.Liveness)
	mux.HandleFunc("GET /api/v1/health/readiness", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/system/signup", withRateLimit(limiter, identityHandler.Signup))
	mux.HandleFunc("POST /api/v1/system/signin", withRateLimit(limiter, identityHandler.Signin))
	mux.Handle("GET /api/v1/system/me", authorize(http.HandlerFunc(identityHandler.WhoAmI)))
	mux.Handle("POST /api/v1/system/me/update-password", authorize(http.HandlerFunc(identityHandler.ChangePassword)))

	mux.Handle("GET /api/v1/users", authorize(http.HandlerFunc(usersHandler.List)))
	mux.Handle("POST /api/v1/users", authorize(http.HandlerFunc(usersHandler.Create)))
	mux.Handle("GET /api/v1/users/{id}", authorize(http.HandlerFunc(usersHandler.Get)))
	mux.Handle("PUT /api/v1/users/{id}", authorize(http.HandlerFunc(usersHandler.UpdatePassword)))
	mux.Handle("DELETE /api/v1/users/{id}", authorize(http.HandlerFunc(usersHandler.Delete)))

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respond.New(w).
			SetMeta(respond.QueryMeta(r)).
			SetResult(map[string]string{"message": "Resource requested does not exist."}).
			SetStatus(respond.StatusNotFound).
			Build()
	})

	// 9. Middleware chain: request id -> recover -> metrics -> CORS ->
	// content type -> routes, wrapped in otel instrumentation.
	var root http.Handler = mux
	root = middleware.ValidateJSONContentType(log)(root)
	root = withCORS(cfg.CORSAllowedOrigins, root)
	root = metrics.HTTPMetricsMiddleware(root)
	root = middleware.Recover(log)(root)
	root = middleware.RequestID(root)
	root = otelhttp.NewHandler(root, "identityhub")

	// 10. Background stats worker
	statsWorker := worker.NewStatsWorker(directory, log, time.Minute)
	go statsWorker.Start(ctx)

	// 11. Start HTTP server with graceful shutdown
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.Int("port", cfg.ServerPort))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server failed", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", slog.String("error", err.Error()))
	}
}

// withRateLimit applies the per-client limiter to credential endpoints,
// keyed by the remote host.
func withRateLimit(limiter *ratelimit.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !limiter.Allow(host) {
			respond.New(w).
				SetResult(map[string]string{"message": "Too many requests. Try again later."}).
				SetStatus(respond.StatusForbidden).
				Build()
			return
		}
		next(w, r)
	}
}

func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(allowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
