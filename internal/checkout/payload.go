// Package checkout hands a priced cart to the hosted payment session
// function.
package checkout

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/money"
	"github.com/noah-isme/storefront-promo/internal/promotion"
)

// Mode describes which kind of savings reached the processor.
type Mode string

const (
	ModeCode Mode = "code"
	ModeAuto Mode = "auto"
	ModeNone Mode = "none"
)

const (
	maxAppliedIDs = 20
	maxIDLen      = 80
	maxVariantLen = 120
	maxNameLen    = 200
	maxCodeLen    = 80
)

// ErrInvalidLine is returned when a line would reach the processor with a
// non-positive unit price.
var ErrInvalidLine = errors.New("checkout: line price must be positive")

// Line is one item as sent to the processor. Prices are currency units.
type Line struct {
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	Variant         string          `json:"variant,omitempty"`
	Price           decimal.Decimal `json:"price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	Qty             int             `json:"qty"`
}

// Promo is the order level savings summary.
type Promo struct {
	Code             string   `json:"code,omitempty"`
	SavingsCents     int64    `json:"savings_cents"`
	SavingsCodeCents int64    `json:"savings_code_cents"`
	SavingsAutoCents int64    `json:"savings_auto_cents"`
	AppliedIDs       []string `json:"applied_ids"`
	Mode             Mode     `json:"mode"`
}

// Customer identifies the shopper to the processor when known.
type Customer struct {
	Email string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Name  string `json:"name,omitempty" validate:"omitempty,max=200"`
}

// Payload is the body of a session creation request.
type Payload struct {
	Items      []Line    `json:"items"`
	Promo      Promo     `json:"promo"`
	SuccessURL string    `json:"success_url,omitempty"`
	CancelURL  string    `json:"cancel_url,omitempty"`
	OrderID    string    `json:"kk_order_id"`
	Customer   *Customer `json:"customer,omitempty"`

	// CheckoutID keys the upstream call. It travels as the Idempotency-Key
	// header, never in the body.
	CheckoutID string `json:"-"`
}

// BuildLines spreads the cart's total savings over its lines in proportion
// to each line's subtotal.
func BuildLines(items []promotion.LineItem, totals promotion.CartTotals) []Line {
	discounts := money.FloorAtZero(totals.Subtotal.Sub(totals.Total))
	cartSubtotal := money.Zero
	for _, it := range items {
		cartSubtotal = cartSubtotal.Add(money.Times(money.FloorAtZero(it.Price), lineQty(it)))
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		qty := lineQty(it)
		price := money.FloorAtZero(it.Price)
		discounted := price
		if cartSubtotal.IsPositive() && discounts.IsPositive() {
			share := discounts.Mul(money.Times(price, qty)).Div(cartSubtotal)
			unit := share.Div(decimal.NewFromInt(int64(qty)))
			discounted = money.FloorAtZero(price.Sub(unit))
		}
		lines = append(lines, Line{
			ProductID:       truncate(it.PrimaryKey(), maxIDLen),
			Name:            truncate(it.Name, maxNameLen),
			Variant:         truncate(it.Variant, maxVariantLen),
			Price:           price,
			DiscountedPrice: discounted,
			Qty:             qty,
		})
	}
	return lines
}

// BuildPromo summarises the savings. Automatic savings are capped at the
// subtotal and code savings at what remains.
func BuildPromo(totals promotion.CartTotals) Promo {
	auto := decimal.Min(money.FloorAtZero(totals.AutoDiscount), totals.Subtotal)
	code := decimal.Min(money.FloorAtZero(totals.CouponDiscount), money.FloorAtZero(totals.Subtotal.Sub(auto)))

	p := Promo{
		SavingsCents:     money.ToCents(totals.Savings()),
		SavingsCodeCents: money.ToCents(code),
		SavingsAutoCents: money.ToCents(auto),
		AppliedIDs:       appliedIDs(totals),
		Mode:             ModeNone,
	}
	if totals.Coupon != nil {
		p.Code = truncate(totals.Coupon.Code, maxCodeLen)
	}
	switch {
	case p.Code != "":
		p.Mode = ModeCode
	case p.SavingsCents > 0:
		p.Mode = ModeAuto
	}
	return p
}

func appliedIDs(totals promotion.CartTotals) []string {
	ids := make([]string, 0, len(totals.PromoBreakdown)+len(totals.BogoBreakdown)+1)
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" || len(ids) >= maxAppliedIDs {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, truncate(id, maxIDLen))
	}
	for _, a := range totals.PromoBreakdown {
		add(a.Promo.ID.String())
	}
	for _, a := range totals.BogoBreakdown {
		add(a.Promo.ID.String())
	}
	if totals.Coupon != nil {
		add(totals.Coupon.ID.String())
	}
	return ids
}

// Validate rejects payloads the processor would refuse.
func (p Payload) Validate() error {
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidLine)
	}
	for i, line := range p.Items {
		if money.ToCents(line.DiscountedPrice) <= 0 {
			return fmt.Errorf("%w: items[%d] %q", ErrInvalidLine, i, line.ProductID)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("%w: items[%d] quantity", ErrInvalidLine, i)
		}
	}
	return nil
}

func lineQty(it promotion.LineItem) int {
	return max(1, it.Quantity())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
