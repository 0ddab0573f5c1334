package events

import (
	"context"
	"strings"
)

// Invalidator drops cached state derived from promotions.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// CacheInvalidator invalidates the promotion cache for promotion topics so
// processes that did not make the change, such as the worker, stay current.
type CacheInvalidator struct {
	Cache Invalidator
}

// Notify implements Notifier.
func (c CacheInvalidator) Notify(ctx context.Context, ev Event) error {
	if c.Cache == nil || !strings.HasPrefix(ev.Topic, "promotion.") {
		return nil
	}
	return c.Cache.Invalidate(ctx)
}
