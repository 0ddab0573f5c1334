package promotion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/money"
)

// Row is the flat storage and wire form of a promotion.
type Row struct {
	ID              uuid.UUID           `json:"id"`
	Name            string              `json:"name"`
	Description     *string             `json:"description"`
	Type            string              `json:"type"`
	Value           decimal.NullDecimal `json:"value"`
	ScopeType       string              `json:"scope_type"`
	ScopeData       []string            `json:"scope_data"`
	BogoRewardType  *string             `json:"bogo_reward_type"`
	BogoRewardID    *string             `json:"bogo_reward_id"`
	MaxUsesPerOrder *int                `json:"max_uses_per_order"`
	RequiresCode    bool                `json:"requires_code"`
	Code            *string             `json:"code"`
	IsActive        bool                `json:"is_active"`
	IsPublic        bool                `json:"is_public"`
	StartDate       *time.Time          `json:"start_date"`
	EndDate         *time.Time          `json:"end_date"`
	MinOrderAmount  decimal.NullDecimal `json:"min_order_amount"`
	UsageLimit      *int                `json:"usage_limit"`
	UsedCount       int                 `json:"used_count"`
	BannerImagePath *string             `json:"banner_image_path"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// FromRow decodes a stored row. It fails with ErrInvalidPromotion when the
// type specific fields are missing or inconsistent.
func FromRow(r Row) (Promotion, error) {
	reward, err := rewardFromRow(r)
	if err != nil {
		return Promotion{}, err
	}
	scope := ScopeType(strings.TrimSpace(r.ScopeType))
	if scope == "" {
		scope = ScopeAll
	}
	p := Promotion{
		ID:              r.ID,
		Name:            strings.TrimSpace(r.Name),
		Description:     deref(r.Description),
		Code:            strings.TrimSpace(deref(r.Code)),
		RequiresCode:    r.RequiresCode,
		IsActive:        r.IsActive,
		IsPublic:        r.IsPublic,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		MinOrderAmount:  money.Zero,
		UsageLimit:      r.UsageLimit,
		UsedCount:       r.UsedCount,
		Scope:           Scope{Type: scope, Data: trimAll(r.ScopeData)},
		Reward:          reward,
		BannerImagePath: deref(r.BannerImagePath),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.MinOrderAmount.Valid {
		p.MinOrderAmount = money.FloorAtZero(r.MinOrderAmount.Decimal)
	}
	if p.RequiresCode && p.Code == "" {
		return Promotion{}, fmt.Errorf("%w: requires_code without code", ErrInvalidPromotion)
	}
	return p, nil
}

func rewardFromRow(r Row) (Reward, error) {
	switch Kind(strings.TrimSpace(r.Type)) {
	case KindPercentage:
		if !r.Value.Valid {
			return nil, fmt.Errorf("%w: percentage without value", ErrInvalidPromotion)
		}
		return PercentOff{Percent: r.Value.Decimal}, nil
	case KindFixed:
		if !r.Value.Valid {
			return nil, fmt.Errorf("%w: fixed without value", ErrInvalidPromotion)
		}
		return AmountOff{Amount: r.Value.Decimal}, nil
	case KindBogo:
		rt := ScopeType(strings.TrimSpace(deref(r.BogoRewardType)))
		rid := strings.TrimSpace(deref(r.BogoRewardID))
		if !validRewardTarget(rt) || rid == "" {
			return nil, fmt.Errorf("%w: bogo without reward target", ErrInvalidPromotion)
		}
		b := BuyGet{RewardType: rt, RewardID: rid}
		if r.MaxUsesPerOrder != nil && *r.MaxUsesPerOrder > 0 {
			b.MaxUsesPerOrder = *r.MaxUsesPerOrder
		}
		return b, nil
	case KindFreeShipping:
		return FreeShipping{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidPromotion, r.Type)
	}
}

// ToRow encodes p into its flat form.
func ToRow(p Promotion) Row {
	r := Row{
		ID:              p.ID,
		Name:            p.Name,
		Description:     ref(p.Description),
		Type:            string(p.Kind()),
		ScopeType:       string(p.scopeType()),
		ScopeData:       p.Scope.Data,
		RequiresCode:    p.RequiresCode,
		Code:            ref(p.Code),
		IsActive:        p.IsActive,
		IsPublic:        p.IsPublic,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		UsageLimit:      p.UsageLimit,
		UsedCount:       p.UsedCount,
		BannerImagePath: ref(p.BannerImagePath),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if r.ScopeData == nil {
		r.ScopeData = []string{}
	}
	if !p.MinOrderAmount.IsZero() {
		r.MinOrderAmount = decimal.NewNullDecimal(p.MinOrderAmount)
	}
	switch rw := p.Reward.(type) {
	case PercentOff:
		r.Value = decimal.NewNullDecimal(rw.Percent)
	case AmountOff:
		r.Value = decimal.NewNullDecimal(rw.Amount)
	case BuyGet:
		rt := string(rw.RewardType)
		r.BogoRewardType = &rt
		r.BogoRewardID = ref(rw.RewardID)
		if rw.MaxUsesPerOrder > 0 {
			maxUses := rw.MaxUsesPerOrder
			r.MaxUsesPerOrder = &maxUses
		}
	}
	return r
}

// MarshalJSON renders the promotion in its flat row shape.
func (p Promotion) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToRow(p))
}

// UnmarshalJSON accepts the flat row shape.
func (p *Promotion) UnmarshalJSON(data []byte) error {
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	decoded, err := FromRow(r)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
