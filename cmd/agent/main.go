// Command agent runs the signal execution agent: the queue consumer,
// the reanalysis scheduler, the fill monitor and the operator HTTP
// surface, all in one process.
package main

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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/ai/litellm"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/broker/ibkr"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/marketdata"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-signal-executor/internal/adapter/settings"
	"github.com/fairyhunter13/ai-signal-executor/internal/app"
	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
	"github.com/fairyhunter13/ai-signal-executor/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness-check interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult {
	return r.Client.Ping(ctx)
}

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Infra: Redis (queue, scheduler, runtime config)
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("redis url invalid", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// Repositories
	signalRepo := postgres.NewSignalRepo(pool)
	tradeRepo := postgres.NewTradeRepo(pool)
	promptRepo := postgres.NewPromptRepo(pool)

	settingsStore := settings.NewStore(rdb)
	if err := settingsStore.InitDefaults(ctx); err != nil {
		slog.Error("settings defaults init failed", slog.Any("error", err))
		os.Exit(1)
	}

	queue := redisq.NewQueue(rdb)
	if err := queue.CleanupCompleted(ctx); err != nil {
		slog.Warn("completed-set cleanup failed", slog.Any("error", err))
	}
	scheduler := redisq.NewScheduler(rdb, queue)

	// Broker gateway and market data
	broker := ibkr.New(cfg)
	yahoo := marketdata.NewYahoo(cfg)
	var market domain.MarketData = yahoo
	if cfg.UseIBKRMarketData {
		market = marketdata.NewComposite(broker, yahoo)
	}

	aiClient := litellm.New(cfg)

	// Core services
	prefetcher := usecase.NewPrefetcher(broker, market, cfg.PrefetchBudget)
	assembler := usecase.NewPromptAssembler(promptRepo)
	executor := usecase.NewTradeExecutor(broker, tradeRepo)
	processor := usecase.NewSignalProcessor(
		queue, signalRepo, tradeRepo, settingsStore, aiClient, scheduler,
		market, broker, prefetcher, assembler, executor, cfg.TaskDeadline)

	consumer := usecase.NewConsumer(queue, processor,
		cfg.QueuePopTimeout, cfg.ConsumerMaxConcurrency,
		cfg.QueueBackoffInitialInterval, cfg.QueueBackoffMaxInterval)
	releaser := usecase.NewScheduleReleaser(scheduler, cfg.SchedulerPollInterval)
	monitor := usecase.NewFillMonitor(broker, tradeRepo, cfg.MonitorPollInterval)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	// Operator HTTP surface
	dbCheck, redisCheck, llmCheck, gatewayCheck := app.BuildReadinessChecks(cfg, pool, redisAdapter{rdb}, broker)
	srv := httpserver.NewServer(cfg, queue, settingsStore, tradeRepo, scheduler,
		dbCheck, redisCheck, llmCheck, gatewayCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	go releaser.Run(ctx)
	go monitor.Run(ctx)

	// The consumer owns the shutdown drain: Run returns only after
	// in-flight tasks finish.
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx)
	}()

	slog.Info("agent started",
		slog.String("env", cfg.AppEnv),
		slog.Int("concurrency", cfg.ConsumerMaxConcurrency))

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		slog.Warn("consumer drain timed out")
	}
}
