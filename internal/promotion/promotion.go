package promotion

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no promotion matches the lookup.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvalidPromotion marks a record whose fields do not describe a usable rule.
	ErrInvalidPromotion = errors.New("invalid promotion")
)

// Kind is the discount type of a promotion.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixed        Kind = "fixed"
	KindBogo         Kind = "bogo"
	KindFreeShipping Kind = "free_shipping"
)

// ScopeType is what a promotion targets.
type ScopeType string

const (
	ScopeAll      ScopeType = "all"
	ScopeProduct  ScopeType = "product"
	ScopeCategory ScopeType = "category"
	ScopeTag      ScopeType = "tag"
)

// Scope is the targeting rule of a promotion. Data holds product, category
// or tag identifiers depending on Type and is ignored for ScopeAll.
type Scope struct {
	Type ScopeType
	Data []string
}

// Reward is the type specific part of a promotion. The concrete variants are
// PercentOff, AmountOff, BuyGet and FreeShipping.
type Reward interface {
	Kind() Kind
	isReward()
}

// PercentOff discounts Percent percent of the base amount.
type PercentOff struct {
	Percent decimal.Decimal
}

// AmountOff discounts a fixed amount in currency units.
type AmountOff struct {
	Amount decimal.Decimal
}

// BuyGet frees reward units once enough qualifying units are bought.
// MaxUsesPerOrder caps the number of free units; zero means the default cap.
type BuyGet struct {
	RewardType      ScopeType
	RewardID        string
	MaxUsesPerOrder int
}

// FreeShipping waives shipping; it never reduces the item subtotal.
type FreeShipping struct{}

func (PercentOff) Kind() Kind   { return KindPercentage }
func (AmountOff) Kind() Kind    { return KindFixed }
func (BuyGet) Kind() Kind       { return KindBogo }
func (FreeShipping) Kind() Kind { return KindFreeShipping }

func (PercentOff) isReward()   {}
func (AmountOff) isReward()    {}
func (BuyGet) isReward()       {}
func (FreeShipping) isReward() {}

const defaultMaxUsesPerOrder = 1

// Cap returns the per order cap on free units.
func (b BuyGet) Cap() int {
	if b.MaxUsesPerOrder > 0 {
		return b.MaxUsesPerOrder
	}
	return defaultMaxUsesPerOrder
}

// Promotion is a discount rule as loaded from storage.
type Promotion struct {
	ID              uuid.UUID
	Name            string
	Description     string
	Code            string
	RequiresCode    bool
	IsActive        bool
	IsPublic        bool
	StartDate       *time.Time
	EndDate         *time.Time
	MinOrderAmount  decimal.Decimal
	UsageLimit      *int
	UsedCount       int
	Scope           Scope
	Reward          Reward
	BannerImagePath string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Kind reports the discount type, or "" when the reward is missing.
func (p Promotion) Kind() Kind {
	if p.Reward == nil {
		return ""
	}
	return p.Reward.Kind()
}

// IsAuto reports whether the promotion applies without a code. A promotion
// that carries a code is treated as code-only even when requires_code is off.
func (p Promotion) IsAuto() bool {
	return !p.RequiresCode && strings.TrimSpace(p.Code) == ""
}

// ActiveAt reports whether now falls inside the inclusive date window.
func (p Promotion) ActiveAt(now time.Time) bool {
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return false
	}
	return true
}

// UsageExhausted reports whether the redemption cap has been reached.
func (p Promotion) UsageExhausted() bool {
	return p.UsageLimit != nil && *p.UsageLimit >= 0 && p.UsedCount >= *p.UsageLimit
}

func (p Promotion) scopeType() ScopeType {
	if p.Scope.Type == "" {
		return ScopeAll
	}
	return p.Scope.Type
}
