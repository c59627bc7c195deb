package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist remembers revoked token ids until they would have expired anyway.
type Denylist struct {
	client *redis.Client
}

// NewDenylist constructs a redis backed denylist. A nil client disables revocation.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client}
}

func denyKey(jti string) string {
	return "auth:denylist:" + jti
}

// Revoke marks jti revoked until expiresAt.
func (d *Denylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if d == nil || d.client == nil {
		return errors.New("auth: denylist not configured")
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denyKey(jti), 1, ttl).Err()
}

// IsRevoked reports whether jti was revoked.
func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if d == nil || d.client == nil {
		return false, nil
	}
	n, err := d.client.Exists(ctx, denyKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
