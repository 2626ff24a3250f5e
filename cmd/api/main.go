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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/api/router"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/app/bootstrap"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	appconfig "github.com/wolfman30/mentalcare-crisis-engine/internal/config"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/mentalcare-crisis-engine/internal/http/middleware"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/observability/metrics"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/webchat"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting mentalcare crisis engine",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// Create HTTP server. No WriteTimeout: the events websocket is long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	a.close(shutdownCtx)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app owns every long-lived resource of the API process.
type app struct {
	handler  http.Handler
	engine   *conversation.Engine
	recorder *audit.Recorder
	watcher  *lexicon.Watcher
	pool     *pgxpool.Pool
	redis    *redis.Client
	logger   *logging.Logger
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	registry, watcher, err := bootstrap.BuildLexicons(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("load lexicons: %w", err)
	}

	pool := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	crisisMetrics := metrics.NewCrisisMetrics(reg)

	auditStores := bootstrap.BuildAuditStores(pool, redisClient, logger)
	recorder := audit.NewRecorder(auditStores.Sink, logger, crisisMetrics).WithTimeout(cfg.AuditWriteTimeout)
	custom := bootstrap.BuildCustomStore(redisClient)
	bank := answers.DefaultBank()
	settings := cfg.EmergencySettings()

	hub := webchat.NewHub(logger)
	engine := conversation.NewEngine(conversation.Deps{
		Lexicons:          registry,
		Policy:            cfg.Policy(),
		MaxUtteranceRunes: cfg.MaxUtteranceRunes,
		Emergency:         settings,
		Resolver:          answers.NewResolver(bank, custom, logger),
		Fallback:          answers.NewFallback(cfg.CompanionName, settings),
		Custom:            custom,
		States:            bootstrap.BuildStateStore(redisClient, cfg),
		Recorder:          recorder,
		Dialer:            hub,
		Host:              hub,
		Metrics:           crisisMetrics,
		Logger:            logger,
	})
	hub.Bind(engine)

	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("lexicon hot reload disabled", "error", err)
			watcher = nil
		}
	}

	checks := map[string]handlers.HealthCheck{}
	logStore, pendingLogs := auditStores.Listers()
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, /admin/emergency-logs is disabled")
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Conversations:      handlers.NewConversationsHandler(engine, logger),
		Questions:          handlers.NewQuestionsHandler(bank, custom, logger),
		Hotlines:           handlers.NewHotlinesHandler(settings),
		EmergencyLogs:      handlers.NewAdminEmergencyLogsHandler(logStore, pendingLogs, logger),
		Health:             handlers.NewHealthHandler(checks, logger),
		Events:             hub.HandleWebSocket,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		QuestionWrites:     httpmiddleware.NewRateLimiter(cfg.QuestionWriteRate, cfg.QuestionWriteBurst),
	})

	return &app{
		handler:  handler,
		engine:   engine,
		recorder: recorder,
		watcher:  watcher,
		pool:     pool,
		redis:    redisClient,
		logger:   logger,
	}, nil
}

// close tears down countdowns first so no call fires during shutdown, then waits
// for pending audit writes before closing the stores they use.
func (a *app) close(ctx context.Context) {
	if err := a.engine.Shutdown(ctx); err != nil {
		a.logger.Error("engine shutdown incomplete", "error", err)
	}
	if err := a.recorder.Drain(ctx); err != nil {
		a.logger.Error("pending audit writes abandoned", "error", err)
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
