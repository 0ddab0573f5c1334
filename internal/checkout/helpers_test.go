package checkout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/promotion"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(id, price string, qty int) promotion.LineItem {
	return promotion.LineItem{ProductID: id, Name: "Product " + id, Price: d(price), Qty: qty}
}

func percentPromo(pct string) promotion.Promotion {
	return promotion.Promotion{ID: uuid.New(), Name: "sale", IsActive: true, IsPublic: true,
		Scope: promotion.Scope{Type: promotion.ScopeAll}, Reward: promotion.PercentOff{Percent: d(pct)}}
}

func fixedCoupon(code, amount string) promotion.Promotion {
	return promotion.Promotion{ID: uuid.New(), Name: code, Code: code, RequiresCode: true, IsActive: true,
		Scope: promotion.Scope{Type: promotion.ScopeAll}, Reward: promotion.AmountOff{Amount: d(amount)}}
}

// enginePricer prices carts with the real engine over a fixed promotion set.
type enginePricer struct {
	active  []promotion.Promotion
	coupons map[string]promotion.Promotion
	err     error
}

func (p enginePricer) CartTotals(_ context.Context, items []promotion.LineItem, code string) (promotion.CartTotals, error) {
	if p.err != nil {
		return promotion.CartTotals{}, p.err
	}
	var coupon promotion.CouponResult
	if c, ok := p.coupons[promotion.NormalizeCode(code)]; ok {
		coupon = promotion.CouponResult{OK: true, Promo: &c}
	}
	return promotion.ComputeTotals(p.active, items, coupon), nil
}

type stubSessions struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
}

func (s *stubSessions) Create(_ context.Context, p Payload) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	if s.err != nil {
		return Session{}, s.err
	}
	return Session{URL: "https://pay.example.com/s/" + p.OrderID, OrderID: p.OrderID}, nil
}

type redemptionCall struct {
	checkoutID uuid.UUID
	orderID    string
	ids        []string
}

type stubRedeemer struct {
	calls []redemptionCall
	err   error
}

func (r *stubRedeemer) EnqueueRedemption(_ context.Context, checkoutID uuid.UUID, orderID string, ids []string) error {
	r.calls = append(r.calls, redemptionCall{checkoutID: checkoutID, orderID: orderID, ids: ids})
	return r.err
}

type captureEmitter struct {
	topics []string
	ids    []uuid.UUID
}

func (c *captureEmitter) EmitLogged(_ context.Context, topic string, id uuid.UUID, _ any) {
	c.topics = append(c.topics, topic)
	c.ids = append(c.ids, id)
}
