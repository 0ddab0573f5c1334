package redemption

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store records redemptions.
type Store interface {
	// Record stores one redemption of promotionID by a checkout and bumps
	// the promotion's used count. It reports false when the pair was already
	// recorded.
	Record(ctx context.Context, promotionID, checkoutID uuid.UUID, orderID string) (bool, error)
}

// TxBeginner is satisfied by pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewStore returns a Postgres backed Store.
func NewStore(db TxBeginner) Store {
	return &pgStore{db: db}
}

type pgStore struct {
	db TxBeginner
}

func (s *pgStore) Record(ctx context.Context, promotionID, checkoutID uuid.UUID, orderID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("redemption: database not configured")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `INSERT INTO promotion_redemptions (promotion_id, checkout_id, order_id)
VALUES ($1, $2, $3) ON CONFLICT (promotion_id, checkout_id) DO NOTHING`, promotionID, checkoutID, orderID)
	if err != nil {
		return false, fmt.Errorf("insert redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `UPDATE promotions SET used_count = used_count + 1 WHERE id = $1`, promotionID); err != nil {
		return false, fmt.Errorf("increment used count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
