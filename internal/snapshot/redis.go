package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

const keyPrefix = "cartsync:"

// Store persists cart snapshots to Redis. The snapshot carries the remote
// identifiers, so a resumed session can keep syncing without re-resolving
// every item.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a Redis-backed snapshot store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Load retrieves the snapshot for a user.
func (s *Store) Load(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	key := keyPrefix + userID

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("cart snapshot", userID)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var snap domain.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Save persists a snapshot with the configured TTL.
func (s *Store) Save(ctx context.Context, snap *domain.CartSnapshot) error {
	key := keyPrefix + snap.UserID

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}

	return nil
}

// Delete removes a user's snapshot.
func (s *Store) Delete(ctx context.Context, userID string) error {
	key := keyPrefix + userID

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}

	return nil
}

// Ping checks Redis reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
