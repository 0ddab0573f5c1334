package promotion

// Applies reports whether the promotion's scope covers the item. Unknown
// scope types never match.
func Applies(p Promotion, item LineItem) bool {
	return matchTarget(p.scopeType(), trimAll(p.Scope.Data), item)
}

// Applicable returns the promotions that match at least one item. Promotions
// scoped to the whole store are always included, even for an empty cart.
func Applicable(promos []Promotion, items []LineItem) []Promotion {
	out := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if p.scopeType() == ScopeAll {
			out = append(out, p)
			continue
		}
		for _, it := range items {
			if Applies(p, it) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// matchTarget is shared by scope matching and BOGO reward matching.
func matchTarget(kind ScopeType, ids []string, item LineItem) bool {
	switch kind {
	case ScopeAll:
		return true
	case ScopeProduct:
		return intersects(item.IdentityKeys(), ids)
	case ScopeCategory:
		return intersects(item.Categories(), ids)
	case ScopeTag:
		return intersects(item.TagSet(), ids)
	default:
		return false
	}
}

// Auto filters promos down to the ones that apply without a code and are
// published to the storefront.
func Auto(promos []Promotion) []Promotion {
	out := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if p.IsAuto() && p.IsPublic {
			out = append(out, p)
		}
	}
	return out
}
