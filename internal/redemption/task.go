// Package redemption records promotion usage for orders handed to checkout.
package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeRedeem is the asynq task type recording promotion usage.
const TypeRedeem = "promotion:redeem"

const maxRetry = 10

// Payload is the body of a redeem task. CheckoutID is the dedup key;
// OrderID is kept for logs and the redemption row.
type Payload struct {
	CheckoutID   uuid.UUID `json:"checkout_id"`
	OrderID      string    `json:"order_id"`
	PromotionIDs []string  `json:"promotion_ids"`
}

// NewTask builds the redeem task for a checkout. The task id is derived from
// the checkout so a retried checkout cannot enqueue it twice.
func NewTask(p Payload) (*asynq.Task, error) {
	if p.CheckoutID == uuid.Nil {
		return nil, errors.New("redemption: checkout id is required")
	}
	p.OrderID = strings.TrimSpace(p.OrderID)
	if p.OrderID == "" {
		return nil, errors.New("redemption: order id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRedeem, data,
		asynq.TaskID(TaskID(p.CheckoutID)),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	), nil
}

// TaskID is the deduplicating asynq id for a checkout.
func TaskID(checkoutID uuid.UUID) string {
	return "redeem:" + checkoutID.String()
}

// TaskClient is the part of asynq.Client used to enqueue.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules redeem tasks.
type Enqueuer struct {
	Client TaskClient
}

// EnqueueRedemption schedules usage recording for the promotions applied to
// a checkout. Checkouts without promotions are skipped and an already queued
// checkout is not an error.
func (e Enqueuer) EnqueueRedemption(ctx context.Context, checkoutID uuid.UUID, orderID string, promotionIDs []string) error {
	if e.Client == nil {
		return errors.New("redemption: task client not configured")
	}
	if len(promotionIDs) == 0 {
		return nil
	}
	task, err := NewTask(Payload{CheckoutID: checkoutID, OrderID: orderID, PromotionIDs: promotionIDs})
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("redemption: enqueue: %w", err)
	}
	return nil
}
