// Package app wires the storefront auth service together and owns its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborline/storefront/pkg/database"
	"github.com/harborline/storefront/pkg/health"
	pkgkafka "github.com/harborline/storefront/pkg/kafka"
	"github.com/harborline/storefront/pkg/tracing"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/config"
	"github.com/harborline/storefront/internal/event"
	"github.com/harborline/storefront/internal/guard"
	handler "github.com/harborline/storefront/internal/handler/http"
	"github.com/harborline/storefront/internal/repository/postgres"
	"github.com/harborline/storefront/internal/service"
	"github.com/harborline/storefront/internal/session"
	"github.com/harborline/storefront/migrations"
)

// App wires together all dependencies and runs the storefront auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	sessions       *session.Store
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// New creates a new application instance, initializing all dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "storefront")

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Session store. The TTL matches the refresh token lifetime so a session
	// self-expires together with its token.
	sessions := session.NewStore(cfg.Redis(), cfg.JWTRefreshExpiry, logger)

	// Build the dependency graph.
	issuer := auth.NewIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	cookies := auth.NewCookieWriter(cfg.IsProduction(), cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	userRepo := postgres.NewUserRepository(pool)
	verificationRepo := postgres.NewVerificationRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	verifier := service.NewVerificationService(verificationRepo, userRepo, eventProducer, logger)
	authService := service.NewAuthService(userRepo, sessions, issuer, verifier, eventProducer, logger)
	onboarding := service.NewOnboardingService(userRepo, sessions, verifier, eventProducer, logger)
	routeGuard := guard.New(issuer, authService, logger)

	// Seed the default administrator. Until its onboarding completes, the
	// guard pins the account to the credential-change page.
	if err := service.EnsureDefaultAdmin(ctx, userRepo, cfg.DefaultAdminEmail, cfg.DefaultAdminPassword, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seed default admin: %w", err)
	}

	// Health checks. Redis and Kafka are non-critical: refresh degrades to a
	// 503 and events are fire-and-forget, but the service can still serve.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return sessions.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(
		authService, verifier, onboarding,
		issuer, routeGuard, cookies,
		healthHandler, logger,
		handler.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, Environment: cfg.Environment},
		cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		sessions:       sessions,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush spans from drained requests)
// 3. Kafka producer
// 4. Session store connection
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.sessions.Close(); err != nil {
		a.logger.Error("session store close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
