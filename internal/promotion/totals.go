package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/money"
)

// CartTotals is the priced cart as rendered by the storefront and handed to
// checkout.
type CartTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Total          decimal.Decimal `json:"total"`
	AutoDiscount   decimal.Decimal `json:"autoDiscount"`
	PromoBreakdown []Applied       `json:"promoBreakdown"`
	BogoBreakdown  []Applied       `json:"bogoBreakdown"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	Coupon         *Promotion      `json:"coupon"`
	CouponMeta     *BogoMeta       `json:"couponMeta"`
	CouponReason   Reason          `json:"couponReason,omitempty"`
	FreeShipping   bool            `json:"freeShipping"`
}

// Savings is subtotal minus total, never negative.
func (t CartTotals) Savings() decimal.Decimal {
	return money.FloorAtZero(t.Subtotal.Sub(t.Total))
}

// ComputeTotals prices items against the active promotions and an already
// validated coupon.
//
// Automatic promotions and the coupon are evaluated independently against
// the same subtotal and only summed at the end; the coupon never sees the
// subtotal reduced by automatic discounts.
func ComputeTotals(active []Promotion, items []LineItem, coupon CouponResult) CartTotals {
	subtotal := Subtotal(items)
	auto := Applicable(Auto(active), items)

	linear := LinearDiscount(auto, subtotal)
	bogo := BogoDiscount(auto, items)

	out := CartTotals{
		Subtotal:       subtotal,
		AutoDiscount:   linear.Total.Add(bogo.Total),
		PromoBreakdown: linear.Breakdown,
		BogoBreakdown:  bogo.Breakdown,
		CouponDiscount: money.Zero,
		FreeShipping:   hasFreeShipping(auto),
	}

	switch {
	case coupon.OK && coupon.Promo != nil:
		amount, meta, freeShip := couponAmount(*coupon.Promo, items, subtotal)
		promo := *coupon.Promo
		out.Coupon = &promo
		out.CouponDiscount = amount
		out.CouponMeta = meta
		out.FreeShipping = out.FreeShipping || freeShip
	case coupon.Reason != "":
		out.CouponReason = coupon.Reason
	}

	out.Total = money.FloorAtZero(subtotal.Sub(out.AutoDiscount).Sub(out.CouponDiscount))
	return out
}

// couponAmount evaluates a coupon with the same rules as automatic
// promotions. A coupon whose scope matches nothing in the cart is worth zero.
func couponAmount(p Promotion, items []LineItem, subtotal decimal.Decimal) (decimal.Decimal, *BogoMeta, bool) {
	if len(Applicable([]Promotion{p}, items)) == 0 {
		return money.Zero, nil, false
	}
	switch p.Reward.(type) {
	case PercentOff, AmountOff:
		amount, _ := linearAmount(p, subtotal)
		return amount, nil, false
	case BuyGet:
		if applied, ok := bogoFor(p, items); ok {
			return applied.Amount, applied.Meta, false
		}
		return money.Zero, nil, false
	case FreeShipping:
		return money.Zero, nil, true
	default:
		return money.Zero, nil, false
	}
}

func hasFreeShipping(promos []Promotion) bool {
	for _, p := range promos {
		if p.Kind() == KindFreeShipping {
			return true
		}
	}
	return false
}
