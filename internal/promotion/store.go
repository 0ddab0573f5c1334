package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStoreUnavailable indicates the database dependency is not configured.
var ErrStoreUnavailable = errors.New("promotion: store unavailable")

// Store is the promotion persistence used by the service and the admin
// console. It deals in raw rows; decoding is left to the caller.
type Store interface {
	ListActive(ctx context.Context, now time.Time) ([]Row, error)
	FindByCode(ctx context.Context, code string) (Row, error)
	BestHome(ctx context.Context, now time.Time) (Row, error)

	List(ctx context.Context, limit, offset int) ([]Row, int, error)
	Get(ctx context.Context, id uuid.UUID) (Row, error)
	Create(ctx context.Context, r Row) (Row, error)
	Update(ctx context.Context, r Row) (Row, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Row, error)
	ScopeOptions(ctx context.Context, kind ScopeType) ([]ScopeOption, error)
}

// ScopeOption is a selectable target in the admin scope picker.
type ScopeOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewStore constructs a Store backed by Postgres.
func NewStore(db DB) Store {
	return &pgStore{db: db}
}

type pgStore struct {
	db DB
}

const promotionColumns = `id, name, description, type, value, scope_type, scope_data,
bogo_reward_type, bogo_reward_id, max_uses_per_order, requires_code, code,
is_active, is_public, start_date, end_date, min_order_amount, usage_limit,
used_count, banner_image_path, created_at, updated_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Type, &r.Value, &r.ScopeType, &r.ScopeData,
		&r.BogoRewardType, &r.BogoRewardID, &r.MaxUsesPerOrder, &r.RequiresCode, &r.Code,
		&r.IsActive, &r.IsPublic, &r.StartDate, &r.EndDate, &r.MinOrderAmount, &r.UsageLimit,
		&r.UsedCount, &r.BannerImagePath, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	return r, err
}

func (s *pgStore) queryRows(ctx context.Context, sql string, args ...any) ([]Row, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgStore) queryRow(ctx context.Context, sql string, args ...any) (Row, error) {
	if s == nil || s.db == nil {
		return Row{}, ErrStoreUnavailable
	}
	return scanRow(s.db.QueryRow(ctx, sql, args...))
}

// ListActive returns active promotions whose window covers now.
func (s *pgStore) ListActive(ctx context.Context, now time.Time) ([]Row, error) {
	rows, err := s.queryRows(ctx, `SELECT `+promotionColumns+` FROM promotions
WHERE is_active = TRUE
  AND (start_date IS NULL OR start_date <= $1)
  AND (end_date IS NULL OR end_date >= $1)
ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("list active promotions: %w", err)
	}
	return rows, nil
}

// FindByCode matches code case-insensitively regardless of status.
func (s *pgStore) FindByCode(ctx context.Context, code string) (Row, error) {
	return s.queryRow(ctx, `SELECT `+promotionColumns+` FROM promotions
WHERE lower(code) = lower($1) LIMIT 1`, strings.TrimSpace(code))
}

// BestHome returns the automatic promotion featured on the home banner.
func (s *pgStore) BestHome(ctx context.Context, now time.Time) (Row, error) {
	return s.queryRow(ctx, `SELECT `+promotionColumns+` FROM promotions
WHERE is_active = TRUE
  AND is_public = TRUE
  AND requires_code = FALSE
  AND code IS NULL
  AND (start_date IS NULL OR start_date <= $1)
  AND (end_date IS NULL OR end_date >= $1)
ORDER BY end_date ASC NULLS LAST, created_at DESC
LIMIT 1`, now)
}

// List pages through every promotion, newest first, with the total count.
func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Row, int, error) {
	if s == nil || s.db == nil {
		return nil, 0, ErrStoreUnavailable
	}
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM promotions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count promotions: %w", err)
	}
	rows, err := s.queryRows(ctx, `SELECT `+promotionColumns+` FROM promotions
ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, max(offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	return rows, total, nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	return s.queryRow(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id)
}

func (s *pgStore) Create(ctx context.Context, r Row) (Row, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return s.queryRow(ctx, `INSERT INTO promotions (id, name, description, type, value, scope_type, scope_data,
bogo_reward_type, bogo_reward_id, max_uses_per_order, requires_code, code, is_active, is_public,
start_date, end_date, min_order_amount, usage_limit, banner_image_path)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING `+promotionColumns, writeArgs(r)...)
}

func (s *pgStore) Update(ctx context.Context, r Row) (Row, error) {
	return s.queryRow(ctx, `UPDATE promotions SET
name = $2, description = $3, type = $4, value = $5, scope_type = $6, scope_data = $7,
bogo_reward_type = $8, bogo_reward_id = $9, max_uses_per_order = $10, requires_code = $11, code = $12,
is_active = $13, is_public = $14, start_date = $15, end_date = $16, min_order_amount = $17,
usage_limit = $18, banner_image_path = $19, updated_at = now()
WHERE id = $1
RETURNING `+promotionColumns, writeArgs(r)...)
}

func writeArgs(r Row) []any {
	scopeData := r.ScopeData
	if scopeData == nil {
		scopeData = []string{}
	}
	return []any{r.ID, r.Name, r.Description, r.Type, r.Value, r.ScopeType, scopeData,
		r.BogoRewardType, r.BogoRewardID, r.MaxUsesPerOrder, r.RequiresCode, r.Code,
		r.IsActive, r.IsPublic, r.StartDate, r.EndDate, r.MinOrderAmount, r.UsageLimit,
		r.BannerImagePath}
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (Row, error) {
	return s.queryRow(ctx, `UPDATE promotions SET is_active = $2, updated_at = now()
WHERE id = $1 RETURNING `+promotionColumns, id, active)
}

// ScopeOptions lists the products, categories or tags a promotion can target.
func (s *pgStore) ScopeOptions(ctx context.Context, kind ScopeType) ([]ScopeOption, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreUnavailable
	}
	var query string
	switch kind {
	case ScopeCategory:
		query = `SELECT id::text, name FROM categories ORDER BY name`
	case ScopeTag:
		query = `SELECT id::text, name FROM tags ORDER BY name`
	case ScopeProduct:
		query = `SELECT id::text, name FROM products ORDER BY name`
	default:
		return nil, fmt.Errorf("%w: unknown scope option kind %q", ErrInvalidPromotion, kind)
	}
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s options: %w", kind, err)
	}
	defer rows.Close()

	out := make([]ScopeOption, 0)
	for rows.Next() {
		var opt ScopeOption
		if err := rows.Scan(&opt.ID, &opt.Name); err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}
