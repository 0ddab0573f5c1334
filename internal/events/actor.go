package events

import (
	"context"

	"github.com/noah-isme/storefront-promo/internal/common"
)

func actorFrom(ctx context.Context) string {
	if p, ok := common.PrincipalFrom(ctx); ok {
		return p.Subject
	}
	return ""
}
