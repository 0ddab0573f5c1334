package promotion

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reason explains why a coupon code was refused.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonInactive      Reason = "inactive"
	ReasonExpired       Reason = "expired"
	ReasonNotYetActive  Reason = "not_yet_active"
	ReasonBelowMinimum  Reason = "below_minimum"
	ReasonUsageExceeded Reason = "usage_exceeded"
)

// Message is the shopper facing text for a refusal.
func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "Promo code not found."
	case ReasonInactive:
		return "This promo code is not active."
	case ReasonExpired:
		return "This promo code has expired."
	case ReasonNotYetActive:
		return "This promo code is not active yet."
	case ReasonBelowMinimum:
		return "Your order does not meet the minimum for this code."
	case ReasonUsageExceeded:
		return "This promo code has reached its usage limit."
	default:
		return "This promo code cannot be applied."
	}
}

// CouponResult is the outcome of validating a code. A refused code is a
// normal result, not an error.
type CouponResult struct {
	OK     bool       `json:"ok"`
	Promo  *Promotion `json:"promo,omitempty"`
	Reason Reason     `json:"reason,omitempty"`
}

func refuse(r Reason) CouponResult { return CouponResult{Reason: r} }

// NormalizeCode trims a code entered by a shopper.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// FindByCode looks up a promotion by case-insensitive code.
func FindByCode(promos []Promotion, code string) (Promotion, bool) {
	code = NormalizeCode(code)
	if code == "" {
		return Promotion{}, false
	}
	for _, p := range promos {
		if strings.EqualFold(strings.TrimSpace(p.Code), code) {
			return p, true
		}
	}
	return Promotion{}, false
}

// CheckCoupon validates the static rules of a coupon at now for a cart with
// the given subtotal. A nil promotion means the code did not match.
func CheckCoupon(p *Promotion, subtotal decimal.Decimal, now time.Time) CouponResult {
	if p == nil {
		return refuse(ReasonNotFound)
	}
	if !p.IsActive {
		return refuse(ReasonInactive)
	}
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return refuse(ReasonNotYetActive)
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return refuse(ReasonExpired)
	}
	if subtotal.LessThan(p.MinOrderAmount) {
		return refuse(ReasonBelowMinimum)
	}
	if p.UsageExhausted() {
		return refuse(ReasonUsageExceeded)
	}
	promo := *p
	return CouponResult{OK: true, Promo: &promo}
}

// CouponLabel is the line label shown for an applied coupon.
func CouponLabel(p Promotion, meta *BogoMeta) string {
	label := strings.ToUpper(strings.TrimSpace(p.Code))
	if label == "" {
		label = p.Name
	}
	if p.Kind() == KindBogo && meta != nil && meta.FreeCount > 0 {
		label = fmt.Sprintf("%s (free x%d)", label, meta.FreeCount)
	}
	return label
}
