package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/twofactor/internal/mfa/audit"
	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	httpapi "github.com/aussiebroadwan/twofactor/internal/mfa/http"
	"github.com/aussiebroadwan/twofactor/internal/mfa/service"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store/drivers/redis"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/twofactor/pkg/cryptox"
	"github.com/aussiebroadwan/twofactor/pkg/httpx"
	"github.com/aussiebroadwan/twofactor/pkg/jwtx"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	serviceName = "mfa-service"
)

// Application encapsulates the MFA service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	attempts    store.AttemptStore
	redisClient *goredis.Client
	registry    *prometheus.Registry
	metrics     *metricsx.MFA
	kafkaSink   *audit.KafkaSink

	// Services
	auditRecorder       *service.AuditRecorder
	ledger              *service.Ledger
	challengeService    *service.ChallengeService
	enrollmentService   *service.EnrollmentService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: serviceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Pepper for backup-code hashes; fail now rather than on first enrollment.
	cryptox.SetPepperPath(app.cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initAttemptStore(); err != nil {
		_ = app.closeResources()
		return nil, err
	}

	if err := app.initMetrics(); err != nil {
		_ = app.closeResources()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.closeResources()
		return nil, err
	}

	if err := app.initHTTP(); err != nil {
		_ = app.closeResources()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("mfa service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"attempt_store", app.cfg.AttemptStore,
		"audit_sinks", app.cfg.AuditSinks,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mfa service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.auditRecorder.Stop()

	if err := app.closeResources(); err != nil {
		return err
	}

	app.logger.Info("mfa service stopped")
	return nil
}

// closeResources flushes queued audit events before the stores go away.
func (app *Application) closeResources() error {
	if app.auditRecorder != nil {
		app.auditRecorder.Stop()
	}

	var errs []error
	if app.kafkaSink != nil {
		if err := app.kafkaSink.Close(); err != nil {
			app.logger.Error("error closing kafka audit sink", "error", err)
			errs = append(errs, err)
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.FileDSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initAttemptStore picks the failure ledger backend. Redis is required when
// more than one instance serves the same users.
func (app *Application) initAttemptStore() error {
	switch app.cfg.AttemptStore {
	case AttemptStoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		app.redisClient = client
		app.attempts = redis.NewAttemptStore(client, redis.AttemptStoreConfig{
			TTL: 2 * app.cfg.LockoutDuration,
		})
		app.logger.Info("attempt store: redis", "addr", app.cfg.RedisAddr)
	default:
		app.attempts = memory.NewAttemptStore()
		app.logger.Info("attempt store: memory")
	}
	return nil
}

func (app *Application) initMetrics() error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metricsx.New(metricsx.Options{Registerer: app.registry})
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = m
	return nil
}

func (app *Application) auditSinks() ([]service.AuditSink, error) {
	var sinks []service.AuditSink
	for _, name := range app.cfg.AuditSinks {
		switch name {
		case SinkLog:
			sinks = append(sinks, audit.NewLogSink(app.logger))
		case SinkDB:
			sinks = append(sinks, audit.NewStoreSink(app.db))
		case SinkKafka:
			ks, err := audit.NewKafkaSink(app.cfg.KafkaBrokers, app.cfg.KafkaAuditTopic, serviceName, app.logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create kafka audit sink: %w", err)
			}
			app.kafkaSink = ks
			sinks = append(sinks, ks)
		}
	}
	return sinks, nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	sinks, err := app.auditSinks()
	if err != nil {
		return err
	}
	app.auditRecorder = service.NewAuditRecorder(app.logger, app.metrics, sinks...)
	app.auditRecorder.Start()

	policy := domain.LockoutPolicy{
		MaxAttempts:     app.cfg.MaxAttempts,
		LockoutDuration: app.cfg.LockoutDuration,
	}
	app.ledger = service.NewLedger(app.attempts, policy, app.auditRecorder, app.metrics)
	app.ledger.RevealLockedUntil = app.cfg.RevealLockoutExpiry

	codec, err := service.NewCredentialCodec([]byte(app.cfg.TokenSecret), app.cfg.TokenTTL, app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to create mfa token codec: %w", err)
	}

	totpVerifier := service.NewTOTPVerifier(app.db, app.ledger, app.auditRecorder, app.metrics)
	backupVerifier := service.NewBackupCodeVerifier(app.db, app.ledger, app.auditRecorder, app.metrics)

	app.enrollmentService = service.NewEnrollmentService(app.db, app.ledger, app.metrics, app.cfg.Issuer)
	app.enrollmentService.BackupCodeCount = app.cfg.BackupCodeCount
	app.enrollmentService.BackupCodeLength = app.cfg.BackupCodeLength

	app.challengeService = service.NewChallengeService(codec, app.db, totpVerifier, backupVerifier)

	app.housekeepingService = service.NewHousekeepingService(
		app.attempts,
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		2*app.cfg.LockoutDuration,
	)
	app.housekeepingService.AuditRetention = app.cfg.AuditRetention

	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() error {
	verifier, err := jwtx.NewVerifierHS256([]byte(app.cfg.AccessTokenSecret), jwtx.VerifyOptions{
		Issuer:   app.cfg.AccessTokenIssuer,
		Audience: app.cfg.AccessTokenAudience,
		Leeway:   30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create access token verifier: %w", err)
	}

	clientIP, err := httpx.NewClientIP(app.cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	if app.cfg.ServiceToken == "" {
		app.logger.Warn("SERVICE_TOKEN not set, challenge endpoint will reject every request")
	}

	router := httpapi.NewRouter(
		verifier,
		app.cfg.ServiceToken,
		BuildVersion,
		app.db,
		app.attempts,
		app.logger,
	)
	router.ChallengeService = app.challengeService
	router.EnrollmentService = app.enrollmentService
	router.Gatherer = app.registry
	router.ClientIP = clientIP
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
