// Package app holds the process bootstrap shared by the API and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-promo/internal/cache"
	"github.com/noah-isme/storefront-promo/internal/config"
	"github.com/noah-isme/storefront-promo/internal/events"
	"github.com/noah-isme/storefront-promo/internal/obs"
	"github.com/noah-isme/storefront-promo/internal/promotion"
)

// OpenPostgres connects a traced pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenRedis connects a client from a redis:// URL. Instrumentation failures
// are logged and do not stop startup.
func OpenRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// PromotionSource builds the cached active promotion source. The Redis
// snapshot is shared across processes unless PROMO_SHARED_CACHE is off.
func PromotionSource(cfg *config.Config, store promotion.ActiveLister, rdb redis.UniversalClient, logger zerolog.Logger) (*promotion.CachedSource, error) {
	sc := promotion.SourceConfig{
		Store:  store,
		TTL:    cfg.PromoCacheTTL,
		Logger: logger.With().Str("component", "promotion_source").Logger(),
	}
	if cfg.PromoSharedCache && rdb != nil {
		sc.Shared = cache.NewJSON(rdb, promotion.ClampTTL(cfg.PromoCacheTTL))
	}
	return promotion.NewSource(sc)
}

// EventBus persists events through db and drops cached promotions whenever
// a promotion topic is emitted.
func EventBus(db events.Row, source events.Invalidator) *events.Bus {
	return &events.Bus{
		Store:     events.NewStore(db),
		Notifiers: []events.Notifier{events.CacheInvalidator{Cache: source}},
	}
}
