package promotion

import (
	"strings"

	"github.com/google/uuid"
)

// Banner is the home page hero built from the featured promotion.
type Banner struct {
	PromotionID uuid.UUID `json:"promotion_id"`
	Title       string    `json:"banner_title"`
	Subtitle    string    `json:"banner_subtitle"`
	Badge       string    `json:"banner_badge"`
	ImagePath   string    `json:"banner_image_path,omitempty"`
	Promotion   Promotion `json:"promotion"`
}

// NewBanner presents p as the home banner.
func NewBanner(p Promotion) Banner {
	subtitle := strings.TrimSpace(p.Description)
	if subtitle == "" {
		subtitle = subtitleFallback(p.Kind())
	}
	return Banner{
		PromotionID: p.ID,
		Title:       p.Name,
		Subtitle:    subtitle,
		Badge:       Badge(p),
		ImagePath:   p.BannerImagePath,
		Promotion:   p,
	}
}

// Badge is the short label for a promotion, such as "SAVE 20%" or "$5 OFF".
func Badge(p Promotion) string {
	switch r := p.Reward.(type) {
	case PercentOff:
		return "SAVE " + r.Percent.Round(2).String() + "%"
	case AmountOff:
		return "$" + r.Amount.Round(2).String() + " OFF"
	case BuyGet:
		return "BOGO"
	case FreeShipping:
		return "FREE SHIPPING"
	default:
		return "PROMO"
	}
}

func subtitleFallback(k Kind) string {
	switch k {
	case KindPercentage:
		return "Limited-time percentage discount on eligible items."
	case KindFixed:
		return "Limited-time discount on eligible items."
	case KindBogo:
		return "Buy one, get one deal on eligible items."
	case KindFreeShipping:
		return "Free shipping promotion is currently live."
	default:
		return "Limited-time promotion is currently live."
	}
}
