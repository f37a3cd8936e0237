package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GenerationLockKey builds the redis key serialising ticket generation per client.
func GenerationLockKey(clientID string) string {
	return fmt.Sprintf("fieldops:generate:client:%s:lock", clientID)
}

// LedgerVerifyLockKey builds the redis key guarding a ledger integrity run.
func LedgerVerifyLockKey(agreementID string) string {
	if agreementID == "" {
		agreementID = "all"
	}
	return fmt.Sprintf("fieldops:ledger:verify:%s:lock", agreementID)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short-lived redis locks.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a Locker. A nil client yields a Locker that always succeeds.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes key for ttl. The returned release func is safe to call once
// the work is done; it only deletes the key if this caller still owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shared: lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
