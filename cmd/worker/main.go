package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/storefront-promo/internal/app"
	"github.com/noah-isme/storefront-promo/internal/config"
	"github.com/noah-isme/storefront-promo/internal/lock"
	"github.com/noah-isme/storefront-promo/internal/obs"
	"github.com/noah-isme/storefront-promo/internal/promotion"
	"github.com/noah-isme/storefront-promo/internal/redemption"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics("storefront", nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   cfg.OTelServiceName + "-worker",
		Endpoint:      cfg.OTelEndpoint,
		SamplingRatio: cfg.OTelSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := app.OpenPostgres(startCtx, cfg.DatabaseURL, "storefront-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	// Redemptions move used_count, so the worker drops the shared snapshot
	// the API instances read from.
	source, err := app.PromotionSource(cfg, promotion.NewStore(pool), redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise promotion source")
	}
	bus := app.EventBus(pool, source)

	processor := &redemption.Processor{
		Store:   redemption.NewStore(pool),
		Locker:  lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond, MaxWait: 5 * time.Second},
		LockTTL: 10 * time.Second,
		Events:  bus,
		Logger:  logger,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse task queue redis url")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		BaseContext: func() context.Context { return logger.WithContext(context.Background()) },
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		Logger: asynqLogger{logger},
	})

	mux := asynq.NewServeMux()
	mux.Handle(redemption.TypeRedeem, processor)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
