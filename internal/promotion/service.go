package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-promo/internal/money"
	"github.com/noah-isme/storefront-promo/internal/obs"
)

// ActiveSource yields the promotions active now.
type ActiveSource interface {
	Active(ctx context.Context) ([]Promotion, error)
	Invalidate(ctx context.Context) error
}

// CodeFinder looks up promotions for coupon entry and the home banner.
type CodeFinder interface {
	FindByCode(ctx context.Context, code string) (Row, error)
	BestHome(ctx context.Context, now time.Time) (Row, error)
}

// Service answers storefront pricing questions.
type Service struct {
	Source ActiveSource
	Codes  CodeFinder
	Now    func() time.Time
	Logger zerolog.Logger
}

// CouponRequest is a coupon entered against a cart. When Subtotal is nil it
// is derived from Items.
type CouponRequest struct {
	Code     string
	Items    []LineItem
	Subtotal *decimal.Decimal
}

// ProductPrice is the display price of a single product.
type ProductPrice struct {
	Base     decimal.Decimal `json:"base_price"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final_price"`
	Promo    *Promotion      `json:"promo"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Source == nil {
		return errors.New("promotion service not configured")
	}
	return nil
}

// Active returns all active promotions, including code-only ones.
func (s *Service) Active(ctx context.Context) ([]Promotion, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Source.Active(ctx)
}

// InvalidateCache drops cached promotions after an edit.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Source.Invalidate(ctx)
}

// ProductPromotions returns the automatic promotions that apply to a product.
func (s *Service) ProductPromotions(ctx context.Context, productID string, categoryIDs, tagIDs []string) ([]Promotion, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	item := LineItem{ProductID: productID, CategoryIDs: categoryIDs, TagIDs: tagIDs}
	out := make([]Promotion, 0)
	for _, p := range Auto(active) {
		if Applies(p, item) {
			out = append(out, p)
		}
	}
	return out, nil
}

// BestProductPrice prices one product with its best automatic deal.
func (s *Service) BestProductPrice(ctx context.Context, item LineItem) (ProductPrice, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return ProductPrice{}, err
	}
	base := money.FloorAtZero(item.Price)
	applicable := Applicable(Auto(active), []LineItem{item})
	best := BestProductDiscount(applicable, base)
	return ProductPrice{
		Base:     base,
		Discount: best.Amount,
		Final:    money.FloorAtZero(base.Sub(best.Amount)),
		Promo:    best.Promo,
	}, nil
}

// CartPromotions returns the automatic promotions applicable to the cart.
func (s *Service) CartPromotions(ctx context.Context, items []LineItem) ([]Promotion, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	return Applicable(Auto(active), items), nil
}

// ValidateCoupon checks a code against the cart. A refused code is reported
// through the result; the error is reserved for storage failures.
func (s *Service) ValidateCoupon(ctx context.Context, req CouponRequest) (CouponResult, error) {
	if s == nil || s.Codes == nil {
		return CouponResult{}, errors.New("promotion service not configured")
	}
	subtotal := Subtotal(req.Items)
	if req.Subtotal != nil {
		subtotal = money.FloorAtZero(*req.Subtotal)
	}
	code := NormalizeCode(req.Code)
	if code == "" {
		return s.couponOutcome(CheckCoupon(nil, subtotal, s.now())), nil
	}

	row, err := s.Codes.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.couponOutcome(CheckCoupon(nil, subtotal, s.now())), nil
		}
		return CouponResult{}, fmt.Errorf("find coupon: %w", err)
	}
	p, err := FromRow(row)
	if err != nil {
		obs.Count(obs.PromotionSkippedTotal, "malformed_coupon")
		s.Logger.Warn().Err(err).Str("promotion_id", row.ID.String()).Msg("coupon promotion is malformed")
		return s.couponOutcome(CheckCoupon(nil, subtotal, s.now())), nil
	}
	return s.couponOutcome(CheckCoupon(&p, subtotal, s.now())), nil
}

func (s *Service) couponOutcome(res CouponResult) CouponResult {
	if res.OK {
		obs.Count(obs.CouponValidationTotal, "ok")
	} else {
		obs.Count(obs.CouponValidationTotal, string(res.Reason))
	}
	return res
}

// CartTotals prices the cart with automatic promotions and an optional code.
func (s *Service) CartTotals(ctx context.Context, items []LineItem, code string) (CartTotals, error) {
	ctx, span := otel.Tracer("promotion").Start(ctx, "promotion.cart_totals")
	defer span.End()
	span.SetAttributes(attribute.Int("cart.lines", len(items)))

	active, err := s.Active(ctx)
	if err != nil {
		span.RecordError(err)
		return CartTotals{}, err
	}

	var coupon CouponResult
	if NormalizeCode(code) != "" {
		subtotal := Subtotal(items)
		coupon, err = s.ValidateCoupon(ctx, CouponRequest{Code: code, Items: items, Subtotal: &subtotal})
		if err != nil {
			span.RecordError(err)
			return CartTotals{}, err
		}
	}
	totals := ComputeTotals(active, items, coupon)
	span.SetAttributes(attribute.String("cart.total", totals.Total.String()))
	return totals, nil
}

// HomeBanner returns the featured automatic promotion, or nil when none runs.
func (s *Service) HomeBanner(ctx context.Context) (*Banner, error) {
	if s == nil || s.Codes == nil {
		return nil, errors.New("promotion service not configured")
	}
	row, err := s.Codes.BestHome(ctx, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("home promotion: %w", err)
	}
	p, err := FromRow(row)
	if err != nil {
		s.Logger.Warn().Err(err).Str("promotion_id", row.ID.String()).Msg("home promotion is malformed")
		return nil, nil
	}
	b := NewBanner(p)
	return &b, nil
}
