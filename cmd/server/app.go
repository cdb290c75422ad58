package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/taskloom/taskloom/internal/api"
	apimiddleware "github.com/taskloom/taskloom/internal/api/middleware"
	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/events"
	"github.com/taskloom/taskloom/internal/metrics"
	"github.com/taskloom/taskloom/internal/notify"
	"github.com/taskloom/taskloom/internal/platform/postgres"
	"github.com/taskloom/taskloom/internal/ratelimit"
	"github.com/taskloom/taskloom/internal/service"
	"github.com/taskloom/taskloom/internal/service/auth"
	"github.com/taskloom/taskloom/internal/store"
	"github.com/taskloom/taskloom/internal/worker"
	"github.com/taskloom/taskloom/migrations"
)

// application holds the fully wired server and its background components.
type application struct {
	cfg    *config.Config
	logger *slog.Logger

	db        *sql.DB
	redis     *redis.Client
	router    http.Handler
	pool      *worker.Pool
	scheduler *worker.Scheduler
}

// newApplication builds every component from configuration: database,
// migrations, rate limiter, circuit breakers, services, background
// workers, and the router.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := openDatabase(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		return nil, err
	}

	prom := metrics.NewRegistry()

	// Breakers guard every outbound dependency; state changes land both
	// in the logs and on the metrics gauge.
	onChange := prom.BreakerStateChange()
	breakers := breaker.NewRegistry(breaker.Options{
		FailureThreshold:     cfg.Breaker.FailureThreshold,
		RecoveryTimeout:      cfg.Breaker.RecoveryTimeout,
		ExpectedResponseTime: cfg.Breaker.ExpectedResponseTime,
		MonitoringWindow:     cfg.Breaker.MonitoringWindow,
	}, breaker.WithStateChange(func(dependency string, from, to breaker.State) {
		log.Warn("circuit breaker state change",
			slog.String("dependency", dependency),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		onChange(dependency, from, to)
	}))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	limiter := ratelimit.New(newWindowStore(redisClient, log), ratelimit.WithMetrics(prom.RateLimit()))

	userStore := postgres.NewUserStore(db)
	taskStore := postgres.NewTaskStore(db)

	jwtService := auth.NewHMACJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	passwordService := auth.NewBcryptPasswordService(cfg.Auth.BcryptCost)

	emitter := events.NewInMemoryEmitter(log)
	userService := service.NewUserService(userStore, passwordService, passwordService, jwtService)
	taskService := service.NewTaskService(db, taskStore, emitter, store.DefaultRetryOptions(postgres.IsTransient))

	var pool *worker.Pool
	if cfg.Worker.WebhookURL != "" {
		notifier := notify.NewWebhookNotifier(cfg.Worker.WebhookURL, breakers, nil)
		pool = worker.NewPool(worker.PoolConfig{
			Workers:   cfg.Worker.Count,
			QueueSize: cfg.Worker.QueueSize,
		}, notifier, prom.Worker(), log)
		emitter.RegisterHandler(pool)
	} else {
		log.Info("webhook URL not configured, outbound notifications disabled")
	}

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Schedule:  cfg.Worker.ReminderSchedule,
		Lookahead: cfg.Worker.ReminderLookahead,
	}, taskStore, emitter, log)

	apiPolicy := ratelimit.Policy{
		Limit:     cfg.RateLimit.APILimit,
		Window:    cfg.RateLimit.APIWindow,
		KeyPrefix: "ratelimit:api:",
	}
	authPolicy := ratelimit.Policy{
		Limit:     cfg.RateLimit.AuthLimit,
		Window:    cfg.RateLimit.AuthWindow,
		KeyPrefix: "ratelimit:auth:",
	}

	deps := api.RouterDeps{
		Logger:      log,
		Auth:        api.NewAuthHandler(userService),
		Tasks:       api.NewTaskHandler(taskService),
		Admin:       api.NewAdminHandler(breakers, limiter, api.RateLimitPolicies(apiPolicy, authPolicy)),
		AuthGuard:   apimiddleware.NewAuthMiddleware(jwtService),
		Metrics:     prom,
		MetricsPage: prom.Handler(),
		ReadyCheck: func(r *http.Request) error {
			if err := db.PingContext(r.Context()); err != nil {
				return fmt.Errorf("database unavailable: %w", err)
			}
			// Redis being down degrades rate limiting to fail-open but
			// does not make the service unready.
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				log.Warn("readiness check: redis unavailable", "error", err.Error())
			}
			return nil
		},
	}
	if cfg.RateLimit.Enabled {
		deps.APILimiter = apimiddleware.NewRateLimiter(limiter, apiPolicy)
		deps.AuthLimiter = apimiddleware.NewRateLimiter(limiter, authPolicy)
	}

	return &application{
		cfg:       cfg,
		logger:    log,
		db:        db,
		redis:     redisClient,
		router:    api.NewRouter(deps),
		pool:      pool,
		scheduler: scheduler,
	}, nil
}

// run serves HTTP until ctx is cancelled, then shuts everything down in
// dependency order: server first, then scheduler, then the worker pool so
// queued notifications drain.
func (app *application) run(ctx context.Context) error {
	if app.pool != nil {
		app.pool.Start()
	}
	if err := app.scheduler.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err.Error())
	}

	app.scheduler.Stop()
	if app.pool != nil {
		app.pool.Stop()
	}
	if err := app.redis.Close(); err != nil {
		app.logger.Error("closing redis client", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("closing database", "error", err.Error())
	}

	app.logger.Info("shutdown complete")
	return nil
}

// openDatabase connects via the pgx stdlib driver and verifies the
// connection.
func openDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// newWindowStore prefers the shared Redis store so limits hold across
// instances. When Redis is unreachable at startup the limiter falls back
// to per-process memory, matching its fail-open posture at runtime.
func newWindowStore(client *redis.Client, log *slog.Logger) ratelimit.WindowStore {
	redisStore, err := ratelimit.NewRedisWindowStore(client)
	if err != nil {
		log.Warn("redis unavailable, rate limiting falls back to in-process store",
			"error", err.Error())
		return ratelimit.NewMemoryWindowStore()
	}
	return redisStore
}
