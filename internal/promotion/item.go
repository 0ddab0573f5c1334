package promotion

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/money"
)

// LineItem is a cart line or a single product view. Any of ProductID, ID,
// SKU and Slug identifies the product.
type LineItem struct {
	ProductID   string          `json:"product_id,omitempty" validate:"omitempty,max=128"`
	ID          string          `json:"id,omitempty" validate:"omitempty,max=128"`
	SKU         string          `json:"sku,omitempty" validate:"omitempty,max=128"`
	Slug        string          `json:"slug,omitempty" validate:"omitempty,max=200"`
	Name        string          `json:"name,omitempty" validate:"omitempty,max=200"`
	Variant     string          `json:"variant,omitempty" validate:"omitempty,max=200"`
	CategoryID  string          `json:"category_id,omitempty"`
	CategoryIDs []string        `json:"category_ids,omitempty"`
	TagIDs      []string        `json:"tag_ids,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Qty         int             `json:"qty" validate:"min=1,max=999"`
}

// IdentityKeys returns the non-empty identity keys in the order
// product_id, id, sku, slug, without duplicates.
func (it LineItem) IdentityKeys() []string {
	keys := make([]string, 0, 4)
	for _, raw := range []string{it.ProductID, it.ID, it.SKU, it.Slug} {
		k := strings.TrimSpace(raw)
		if k == "" || contains(keys, k) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// PrimaryKey is the first identity key, used when a single product id is
// needed downstream.
func (it LineItem) PrimaryKey() string {
	if keys := it.IdentityKeys(); len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// Categories returns CategoryIDs, falling back to CategoryID.
func (it LineItem) Categories() []string {
	if len(it.CategoryIDs) > 0 {
		return trimAll(it.CategoryIDs)
	}
	if c := strings.TrimSpace(it.CategoryID); c != "" {
		return []string{c}
	}
	return nil
}

// TagSet returns TagIDs, falling back to Tags.
func (it LineItem) TagSet() []string {
	if len(it.TagIDs) > 0 {
		return trimAll(it.TagIDs)
	}
	return trimAll(it.Tags)
}

// Quantity is Qty floored at zero.
func (it LineItem) Quantity() int {
	if it.Qty < 0 {
		return 0
	}
	return it.Qty
}

// Subtotal is price times quantity.
func (it LineItem) Subtotal() decimal.Decimal {
	return money.Times(money.FloorAtZero(it.Price), it.Quantity())
}

// Subtotal sums the line subtotals of items.
func Subtotal(items []LineItem) decimal.Decimal {
	total := money.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if contains(b, v) {
			return true
		}
	}
	return false
}
