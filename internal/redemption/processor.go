package redemption

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-promo/internal/events"
	"github.com/noah-isme/storefront-promo/internal/lock"
	"github.com/noah-isme/storefront-promo/internal/obs"
)

// Locker serialises work on one key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter records domain events.
type Emitter interface {
	EmitLogged(ctx context.Context, topic string, aggregateID uuid.UUID, payload any)
}

// Processor handles redeem tasks.
type Processor struct {
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Events  Emitter
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried;
// storage and lock failures are, and already recorded pairs are skipped on
// the retry.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		obs.Count(obs.RedemptionTotal, "invalid")
		return fmt.Errorf("redemption: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.CheckoutID == uuid.Nil {
		obs.Count(obs.RedemptionTotal, "invalid")
		return fmt.Errorf("redemption: checkout id missing: %w", asynq.SkipRetry)
	}
	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		obs.Count(obs.RedemptionTotal, "invalid")
		return fmt.Errorf("redemption: order id missing: %w", asynq.SkipRetry)
	}
	ref := checkoutRef{id: payload.CheckoutID, orderID: orderID}
	log := p.Logger.With().Str("checkout_id", ref.id.String()).Str("order_id", orderID).Logger()

	for _, raw := range payload.PromotionIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			obs.Count(obs.RedemptionTotal, "invalid")
			log.Warn().Str("promotion_id", raw).Msg("skipping redemption with invalid promotion id")
			continue
		}
		if err := p.redeem(ctx, id, ref, log); err != nil {
			obs.Count(obs.RedemptionTotal, "error")
			return err
		}
	}
	return nil
}

type checkoutRef struct {
	id      uuid.UUID
	orderID string
}

func (p *Processor) redeem(ctx context.Context, id uuid.UUID, ref checkoutRef, log zerolog.Logger) error {
	var recorded bool
	err := p.Locker.WithLock(ctx, lock.PromotionKey(id.String()), p.LockTTL, func(ctx context.Context) error {
		var err error
		recorded, err = p.Store.Record(ctx, id, ref.id, ref.orderID)
		return err
	})
	if err != nil {
		return fmt.Errorf("redemption: record %s: %w", id, err)
	}
	if !recorded {
		obs.Count(obs.RedemptionTotal, "duplicate")
		return nil
	}
	obs.Count(obs.RedemptionTotal, "recorded")
	log.Info().Str("promotion_id", id.String()).Msg("promotion redeemed")
	if p.Events != nil {
		p.Events.EmitLogged(ctx, events.TopicPromotionRedeemed, id, map[string]any{
			"checkout_id": ref.id,
			"order_id":    ref.orderID,
		})
	}
	return nil
}
