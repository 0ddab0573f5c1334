package promotion

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/money"
)

// BogoMeta records how a BOGO amount was derived.
type BogoMeta struct {
	FreeCount int             `json:"freeCount"`
	Cheapest  decimal.Decimal `json:"cheapest"`
}

// Applied is one promotion's contribution to a discount.
type Applied struct {
	Promo  Promotion       `json:"promo"`
	Amount decimal.Decimal `json:"amount"`
	Meta   *BogoMeta       `json:"meta,omitempty"`
}

// Discount is the sum of a set of contributions.
type Discount struct {
	Total     decimal.Decimal `json:"totalDiscount"`
	Breakdown []Applied       `json:"breakdown"`
}

// linearAmount evaluates a percentage or fixed promotion against base and
// clamps the result to [0, base]. ok is false for any other kind.
func linearAmount(p Promotion, base decimal.Decimal) (decimal.Decimal, bool) {
	var amount decimal.Decimal
	switch r := p.Reward.(type) {
	case PercentOff:
		amount = money.Percent(base, r.Percent)
	case AmountOff:
		amount = r.Amount
	default:
		return money.Zero, false
	}
	return money.Clamp(amount, money.Zero, money.FloorAtZero(base)), true
}

// LinearDiscount sums the percentage and fixed promotions against subtotal.
// Each amount is clamped to the full subtotal on its own, so the sum may
// exceed the subtotal; callers floor the final total. Zero amounts are left
// out of the breakdown.
func LinearDiscount(promos []Promotion, subtotal decimal.Decimal) Discount {
	out := Discount{Total: money.Zero, Breakdown: []Applied{}}
	for _, p := range promos {
		amount, ok := linearAmount(p, subtotal)
		if !ok || !amount.IsPositive() {
			continue
		}
		out.Total = out.Total.Add(amount)
		out.Breakdown = append(out.Breakdown, Applied{Promo: p, Amount: amount})
	}
	return out
}

// Best is the single best deal for a product view.
type Best struct {
	Amount decimal.Decimal `json:"amount"`
	Promo  *Promotion      `json:"promo"`
}

// BestProductDiscount returns the percentage or fixed promotion giving the
// largest discount on basePrice. Ties keep the first promotion seen.
func BestProductDiscount(promos []Promotion, basePrice decimal.Decimal) Best {
	best := Best{Amount: money.Zero}
	for i := range promos {
		amount, ok := linearAmount(promos[i], basePrice)
		if !ok {
			continue
		}
		if amount.GreaterThan(best.Amount) {
			p := promos[i]
			best = Best{Amount: amount, Promo: &p}
		}
	}
	return best
}

// BogoDiscount evaluates every bogo promotion against the cart on its own.
//
// The promotion scope selects the qualifying purchases; the reward target
// selects the items that can be freed. Every two qualifying units free one
// reward unit, capped by the reward quantity in the cart and by the per order
// cap. The cheapest positive reward price is freed.
func BogoDiscount(promos []Promotion, items []LineItem) Discount {
	out := Discount{Total: money.Zero, Breakdown: []Applied{}}
	for _, p := range promos {
		applied, ok := bogoFor(p, items)
		if !ok {
			continue
		}
		out.Total = out.Total.Add(applied.Amount)
		out.Breakdown = append(out.Breakdown, applied)
	}
	return out
}

func bogoFor(p Promotion, items []LineItem) (Applied, bool) {
	rule, ok := p.Reward.(BuyGet)
	if !ok {
		return Applied{}, false
	}

	buyQty := 0
	for _, it := range items {
		if Applies(p, it) {
			buyQty += it.Quantity()
		}
	}
	if buyQty < 2 {
		return Applied{}, false
	}

	rewardID := strings.TrimSpace(rule.RewardID)
	if rewardID == "" || !validRewardTarget(rule.RewardType) {
		return Applied{}, false
	}
	rewardQty := 0
	cheapest := money.Zero
	for _, it := range items {
		if !matchTarget(rule.RewardType, []string{rewardID}, it) {
			continue
		}
		rewardQty += it.Quantity()
		if it.Price.IsPositive() && (cheapest.IsZero() || it.Price.LessThan(cheapest)) {
			cheapest = it.Price
		}
	}
	if rewardQty == 0 {
		return Applied{}, false
	}

	freeCount := min(buyQty/2, rewardQty, rule.Cap())
	if freeCount <= 0 || cheapest.IsZero() {
		return Applied{}, false
	}
	amount := money.Times(cheapest, freeCount)
	return Applied{
		Promo:  p,
		Amount: amount,
		Meta:   &BogoMeta{FreeCount: freeCount, Cheapest: cheapest},
	}, true
}

func validRewardTarget(t ScopeType) bool {
	switch t {
	case ScopeProduct, ScopeCategory, ScopeTag:
		return true
	default:
		return false
	}
}
