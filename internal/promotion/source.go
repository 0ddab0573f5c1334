package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/storefront-promo/internal/obs"
)

const (
	// SharedSnapshotKey is the Redis key of the cross instance snapshot.
	SharedSnapshotKey = "promo:active:v1"

	DefaultCacheTTL = 45 * time.Second
	MinCacheTTL     = 30 * time.Second
	MaxCacheTTL     = 60 * time.Second
)

// SharedCache is an optional snapshot store shared by all API instances.
type SharedCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// ActiveLister fetches stored active promotions.
type ActiveLister interface {
	ListActive(ctx context.Context, now time.Time) ([]Row, error)
}

// SourceConfig configures a CachedSource.
type SourceConfig struct {
	Store  ActiveLister
	Cache  *Cache
	Shared SharedCache
	TTL    time.Duration
	Now    func() time.Time
	Logger zerolog.Logger
}

// CachedSource serves active promotions from a time bounded cache.
//
// Malformed stored promotions are dropped one by one with a warning so a bad
// record cannot break pricing. A failed fetch is returned as an error and is
// never replaced by an empty list, since that would show full prices as if
// they were correct.
type CachedSource struct {
	store  ActiveLister
	cache  *Cache
	shared SharedCache
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
	group  singleflight.Group
}

// NewSource validates the configuration and applies defaults.
func NewSource(cfg SourceConfig) (*CachedSource, error) {
	if cfg.Store == nil {
		return nil, errors.New("promotion source requires a store")
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CachedSource{
		store:  cfg.Store,
		cache:  cfg.Cache,
		shared: cfg.Shared,
		ttl:    ClampTTL(cfg.TTL),
		now:    cfg.Now,
		log:    cfg.Logger,
	}, nil
}

// ClampTTL bounds ttl to the supported cache window, defaulting when unset.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultCacheTTL
	case ttl < MinCacheTTL:
		return MinCacheTTL
	case ttl > MaxCacheTTL:
		return MaxCacheTTL
	default:
		return ttl
	}
}

// TTL returns the effective cache lifetime.
func (s *CachedSource) TTL() time.Duration { return s.ttl }

// Active returns the promotions active now.
func (s *CachedSource) Active(ctx context.Context) ([]Promotion, error) {
	if snap, ok := s.cache.Fresh(s.now(), s.ttl); ok {
		obs.Count(obs.PromotionCacheTotal, "hit")
		return snap.Promotions, nil
	}
	gen := s.cache.Generation()
	v, err, _ := s.group.Do("active", func() (any, error) {
		// A caller that missed the cache may arrive after a fetch finished.
		if snap, ok := s.cache.Fresh(s.now(), s.ttl); ok {
			return snap.Promotions, nil
		}
		return s.load(context.WithoutCancel(ctx), gen)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Promotion), nil
}

// Invalidate forces the next Active call to refetch.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	s.cache.Invalidate()
	if s.shared == nil {
		return nil
	}
	if err := s.shared.Delete(ctx, SharedSnapshotKey); err != nil {
		return fmt.Errorf("invalidate shared promotions: %w", err)
	}
	return nil
}

func (s *CachedSource) load(ctx context.Context, gen uint64) ([]Promotion, error) {
	ctx, span := otel.Tracer("promotion").Start(ctx, "promotion.load_active")
	defer span.End()

	now := s.now()
	if s.shared != nil {
		var snap Snapshot
		ok, err := s.shared.GetJSON(ctx, SharedSnapshotKey, &snap)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("shared promotion snapshot unavailable")
		case ok && !snap.IsStale(now, s.ttl):
			obs.Count(obs.PromotionCacheTotal, "shared_hit")
			span.SetAttributes(attribute.String("promotion.source", "redis"))
			s.cache.Store(snap, gen)
			return snap.Promotions, nil
		}
	}

	obs.Count(obs.PromotionCacheTotal, "miss")
	span.SetAttributes(attribute.String("promotion.source", "postgres"))
	started := time.Now()
	rows, err := s.store.ListActive(ctx, now)
	obs.Observe(obs.PromotionFetchLatency, obs.DurationMillis(time.Since(started)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch active promotions")
		return nil, fmt.Errorf("fetch active promotions: %w", err)
	}
	promos := s.decode(rows)
	span.SetAttributes(attribute.Int("promotion.count", len(promos)))

	snap := Snapshot{Promotions: promos, FetchedAt: now}
	if s.cache.Store(snap, gen) && s.shared != nil {
		if err := s.shared.SetJSON(ctx, SharedSnapshotKey, snap); err != nil {
			s.log.Warn().Err(err).Msg("store shared promotion snapshot")
		}
	}
	return promos, nil
}

func (s *CachedSource) decode(rows []Row) []Promotion {
	out := make([]Promotion, 0, len(rows))
	for _, r := range rows {
		p, err := FromRow(r)
		if err != nil {
			obs.Count(obs.PromotionSkippedTotal, "malformed")
			s.log.Warn().Err(err).Str("promotion_id", r.ID.String()).Msg("skipping malformed promotion")
			continue
		}
		out = append(out, p)
	}
	return out
}
