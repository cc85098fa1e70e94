package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a SetNX-based seen-marker over redis. It is a fast path only:
// callers must still be safe against duplicates that slip through (the
// authoritative guard for payment notifications lives in the database).
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// NotificationKey identifies one delivery attempt class: the same gateway
// transaction in the same status is the same notification, however often the
// gateway retries it.
func (s *Store) NotificationKey(gatewayTxID, status, statusCode string) string {
	return fmt.Sprintf("notif:%s:%s:%s", gatewayTxID, status, statusCode)
}

// Seen marks the key and reports whether it had been marked before.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
