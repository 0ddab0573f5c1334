package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Denylist tracks revoked token ids until they would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisDenylist stores revoked token ids as expiring Redis keys.
type RedisDenylist struct {
	Client redis.UniversalClient
	Prefix string
}

func (d RedisDenylist) key(tokenID string) string {
	prefix := d.Prefix
	if prefix == "" {
		prefix = "auth:revoked:"
	}
	return prefix + tokenID
}

// Revoke denies tokenID for ttl. Tokens that already expired are ignored.
func (d RedisDenylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if d.Client == nil {
		return errors.New("auth: denylist not configured")
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return d.Client.Set(ctx, d.key(tokenID), "1", ttl).Err()
}

// IsRevoked reports whether tokenID has been revoked.
func (d RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if d.Client == nil {
		return false, errors.New("auth: denylist not configured")
	}
	n, err := d.Client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
