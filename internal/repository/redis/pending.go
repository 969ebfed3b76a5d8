package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pendingKey = "trustscore:pending_products"

// PendingStore implements repository.PendingStore as a Redis set, so the
// marks survive restarts and are shared by every instance.
type PendingStore struct {
	client *redis.Client
	key    string
}

// NewPendingStore creates a new Redis-backed pending store.
func NewPendingStore(client *redis.Client) *PendingStore {
	return &PendingStore{client: client, key: pendingKey}
}

// Mark adds the products to the pending set.
func (s *PendingStore) Mark(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	members := make([]any, len(productIDs))
	for i, id := range productIDs {
		members[i] = id
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("redis sadd pending: %w", err)
	}
	return nil
}

// Drain pops up to n products from the pending set.
func (s *PendingStore) Drain(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	ids, err := s.client.SPopN(ctx, s.key, int64(n)).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("redis spop pending: %w", err)
	}
	return ids, nil
}

// Len returns the size of the pending set.
func (s *PendingStore) Len(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard pending: %w", err)
	}
	return n, nil
}
