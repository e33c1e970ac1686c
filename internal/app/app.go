package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/authapi"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/config"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/content"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/event"
	handler "github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/handler/http"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/session"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/session/store"
	redisstore "github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/session/store/redis"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/health"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/httpclient"
	pkgkafka "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/kafka"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/middleware"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/tracing"
)

// App wires together all dependencies and runs the frontend session
// service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	manager        *session.Manager
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "sportypredict-frontend",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Session store: Redis when configured, in-process memory otherwise.
	var (
		sessionStore store.Store
		redisClient  *goredis.Client
	)
	if cfg.RedisEnabled() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		sessionStore = redisstore.New(redisClient, cfg.SessionKey, cfg.SessionTTL)
		logger.Info("session store using redis", slog.String("addr", cfg.RedisAddr))
	} else {
		sessionStore = store.NewMemory()
		logger.Info("session store using process memory")
	}

	// Remote API clients behind circuit breakers.
	authClient := authapi.New(
		httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("auth-api"),
			logger,
		),
		cfg.AuthAPIBaseURL,
		logger,
	)
	contentClient := content.New(
		httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("content-api"),
			logger,
		),
		cfg.ContentAPIBaseURL,
		logger,
	)

	// Session manager with its broadcaster.
	sessionCfg := session.DefaultConfig()
	sessionCfg.RefreshLead = cfg.TokenRefreshLead
	sessionCfg.VipPollInterval = cfg.VipPollInterval
	sessionCfg.UserPollInterval = cfg.UserPollInterval

	var (
		manager     *session.Manager
		broadcaster session.Broadcaster = session.NopBroadcaster{}
		producer    *pkgkafka.Producer
	)
	if cfg.KafkaEnabled() {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		// The closure resolves the aggregate ID lazily, after the manager
		// below exists.
		broadcaster = event.NewBroadcaster(producer, func() string {
			return manager.Snapshot().UserID
		}, logger)
		logger.Info("kafka broadcaster initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	manager = session.NewManager(authClient, sessionStore, broadcaster, nil, sessionCfg, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	if redisClient != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(manager, contentClient, healthHandler, logger, corsCfg)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // SSE streams stay open
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		redis:          redisClient,
		producer:       producer,
		manager:        manager,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run restores the persisted session, starts the HTTP server, and blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	a.manager.Initialize(initCtx)
	cancel()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown gracefully stops all components in order: HTTP server first so
// in-flight requests drain, then the session manager's timers, then the
// exporters and clients.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Stops timers and waits for pending persistence writes.
	a.manager.Close()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
