// Package main is the entry point of the hostel registry API server.
//
// Startup order: configuration, logger, counter store (Postgres, Redis, or
// process memory), counter restore, HTTP server. The in-memory counters are
// restored before the server accepts its first request.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostel-hub/hostel-registry/config"
	"github.com/hostel-hub/hostel-registry/internal/application/command"
	"github.com/hostel-hub/hostel-registry/internal/application/query"
	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/infrastructure/persistence"
	"github.com/hostel-hub/hostel-registry/internal/infrastructure/persistence/postgres"
	"github.com/hostel-hub/hostel-registry/internal/infrastructure/persistence/redis"
	httpserver "github.com/hostel-hub/hostel-registry/internal/interface/http"
	"github.com/hostel-hub/hostel-registry/internal/interface/http/handlers"
	"github.com/hostel-hub/hostel-registry/pkg/circuitbreaker"
	"github.com/hostel-hub/hostel-registry/pkg/logger"
	"github.com/hostel-hub/hostel-registry/pkg/retry"
	"github.com/hostel-hub/hostel-registry/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// storage is the selected counter store plus what the rest of startup
// needs to know about it.
type storage struct {
	store   identifier.CounterStore
	issues  identifier.IssueLog
	history query.IssueHistory
	kind    string
	checks  map[string]handlers.HealthCheckFunc
	closers []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: true,
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting hostel registry",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location().String()),
		logger.String("overflow_policy", string(cfg.OverflowPolicy())),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. COUNTER STORE
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	breakerSettings := circuitbreaker.CounterStoreSettings()
	breakerSettings.Counts = persistence.IsStoreFailure
	breakerSettings.Notify = func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	store := persistence.NewGuardedStore(st.store, circuitbreaker.New(breakerSettings))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DOMAIN & APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	service := identifier.NewService(identifier.WithOverflowPolicy(cfg.OverflowPolicy()))

	err = retry.Do(ctx, func(ctx context.Context) error {
		return command.RestoreCounters(ctx, service, store, log)
	}, retry.StartupOptions(logRetry(log, "restore counters"))...)
	if err != nil {
		return fmt.Errorf("failed to restore counters: %w", err)
	}

	calendar := timeutil.NewCalendar(nil, cfg.App.Location())

	issues := st.issues
	if !cfg.Identifier.RecordIssued {
		issues = nil
	}

	deps := httpserver.Dependencies{
		GenerateIdentifierHandler: command.NewGenerateIdentifierHandler(service, store, issues, calendar, log),
		SetCounterHandler:         command.NewSetCounterHandler(service, store, log),
		ParseIdentifierHandler:    query.NewParseIdentifierHandler(),
		GetCountersHandler:        query.NewGetCountersHandler(service),
		Logger:                    log,
	}
	if st.history != nil {
		deps.ListIssuedHandler = query.NewListIssuedHandler(st.history)
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version, 0)
	for name, check := range st.checks {
		health.Register(name, check)
	}
	health.Register("counter_store_breaker", store.Check)
	deps.HealthChecker = health

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.TrustedProxies = cfg.HTTP.TrustedProxyPrefixes()
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimit
	httpConfig.AdminKeyHash = cfg.HTTP.AdminKeyHash
	httpConfig.Version = cfg.App.Version

	if httpConfig.AdminKeyHash == "" {
		log.Warn("ADMIN_KEY_HASH is empty, counter administration is disabled")
	}

	server := httpserver.NewServer(httpConfig, deps)
	errCh := server.StartAsync()

	log.Info("hostel registry is running",
		logger.String("http_address", server.Address()),
		logger.String("storage", st.kind),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed", logger.Any("counters", service.Counters()))
	return nil
}

// openStorage picks the counter store: Postgres when DATABASE_URL is set,
// otherwise Redis unless disabled, otherwise process memory.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	st := &storage{checks: make(map[string]handlers.HealthCheckFunc)}

	switch {
	case cfg.Database.URL != "":
		log.Info("connecting to database...")
		conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolOptions{
				MaxConns:        cfg.Database.MaxConns,
				MinConns:        cfg.Database.MinConns,
				MaxConnLifetime: cfg.Database.ConnMaxLifetime,
				MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			})
		}, retry.StartupOptions(logRetry(log, "connect database"))...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st.closers = append(st.closers, conn.Close)

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				st.close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations applied")
		}

		repo := postgres.NewCounterRepo(conn, cfg.Database.QueryTimeout)
		st.store = repo
		st.issues = repo
		st.history = repo
		st.kind = "postgres"
		st.checks["database"] = handlers.PingCheck(conn)

	case !cfg.Redis.Disabled:
		log.Info("connecting to Redis...")
		cache, err := retry.DoWithData(ctx, func(context.Context) (*redis.Cache, error) {
			return redis.NewCache(redis.Config{
				Host:         cfg.Redis.Host,
				Port:         cfg.Redis.Port,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				PoolSize:     cfg.Redis.PoolSize,
				DialTimeout:  cfg.Redis.DialTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
				KeyPrefix:    cfg.Redis.KeyPrefix,
			})
		}, retry.StartupOptions(logRetry(log, "connect redis"))...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = cache.Close() })

		st.store = redis.NewCounterCache(cache)
		st.kind = "redis"
		st.checks["redis"] = handlers.PingCheck(cache)

	default:
		log.Warn("no DATABASE_URL and Redis disabled, counters live in process memory only")
		st.store = identifier.NewMemoryStore()
		st.kind = "memory"
	}

	return st, nil
}

func logRetry(log *logger.Logger, op string) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("startup step failed, retrying",
			logger.Operation(op),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
}
