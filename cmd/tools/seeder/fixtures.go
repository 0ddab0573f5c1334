package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/storefront-promo/internal/money"
	"github.com/noah-isme/storefront-promo/internal/promotion"
)

// seedNamespace derives stable ids for fixtures that omit one, so reseeding
// updates rather than duplicates.
var seedNamespace = uuid.MustParse("0b7f5d3e-6c1a-4b8e-9a57-3f1d2c4e8a90")

type lookup struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type product struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	CategoryID string `yaml:"category_id"`
}

type promotionFixture struct {
	ID              string     `yaml:"id"`
	Name            string     `yaml:"name"`
	Description     string     `yaml:"description"`
	Type            string     `yaml:"type"`
	Value           *float64   `yaml:"value"`
	ScopeType       string     `yaml:"scope_type"`
	ScopeData       []string   `yaml:"scope_data"`
	BogoRewardType  string     `yaml:"bogo_reward_type"`
	BogoRewardID    string     `yaml:"bogo_reward_id"`
	MaxUsesPerOrder *int       `yaml:"max_uses_per_order"`
	RequiresCode    bool       `yaml:"requires_code"`
	Code            string     `yaml:"code"`
	Active          *bool      `yaml:"active"`
	Public          *bool      `yaml:"public"`
	StartDate       *time.Time `yaml:"start_date"`
	EndDate         *time.Time `yaml:"end_date"`
	MinOrderAmount  *float64   `yaml:"min_order_amount"`
	UsageLimit      *int       `yaml:"usage_limit"`
	BannerImagePath string     `yaml:"banner_image_path"`
}

type fixtures struct {
	Categories []lookup           `yaml:"categories"`
	Tags       []lookup           `yaml:"tags"`
	Products   []product          `yaml:"products"`
	Promotions []promotionFixture `yaml:"promotions"`
}

func parseFixtures(r io.Reader) (fixtures, error) {
	var f fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	return f, nil
}

// toRow converts a fixture to a storable row and checks it decodes.
func (p promotionFixture) toRow() (promotion.Row, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return promotion.Row{}, fmt.Errorf("promotion fixture without a name")
	}
	id := uuid.NewSHA1(seedNamespace, []byte(name))
	if strings.TrimSpace(p.ID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(p.ID))
		if err != nil {
			return promotion.Row{}, fmt.Errorf("promotion %q: invalid id: %w", name, err)
		}
		id = parsed
	}
	row := promotion.Row{
		ID:              id,
		Name:            name,
		Description:     optional(p.Description),
		Type:            strings.TrimSpace(p.Type),
		Value:           nullDecimal(p.Value),
		ScopeType:       strings.TrimSpace(p.ScopeType),
		ScopeData:       p.ScopeData,
		BogoRewardType:  optional(p.BogoRewardType),
		BogoRewardID:    optional(p.BogoRewardID),
		MaxUsesPerOrder: p.MaxUsesPerOrder,
		RequiresCode:    p.RequiresCode,
		Code:            optional(p.Code),
		IsActive:        p.Active == nil || *p.Active,
		IsPublic:        p.Public == nil || *p.Public,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		MinOrderAmount:  nullDecimal(p.MinOrderAmount),
		UsageLimit:      p.UsageLimit,
		BannerImagePath: optional(p.BannerImagePath),
	}
	if row.ScopeType == "" {
		row.ScopeType = string(promotion.ScopeAll)
	}
	if _, err := promotion.FromRow(row); err != nil {
		return promotion.Row{}, fmt.Errorf("promotion %q: %w", name, err)
	}
	return row, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(money.FromFloat(*f))
}
