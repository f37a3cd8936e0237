package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records logged-out token ids until they would have expired.
type Denylist struct {
	client *redis.Client
	prefix string
}

// NewDenylist constructs a Denylist backed by redis.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client, prefix: "fieldops:auth:revoked:"}
}

// Revoke denies tokenID until expiresAt.
func (d *Denylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// Revoked reports whether tokenID was revoked.
func (d *Denylist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("auth: check revocation: %w", err)
	}
	return n > 0, nil
}
