package fixctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fixctx:"

// RedisStore is a Redis-backed fix-context store. Redis handles TTL
// expiry; SETNX enforces write-once ids.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Put stores a new record under a fresh UUID and returns the id.
func (s *RedisStore) Put(ctx context.Context, finding json.RawMessage, repo RepoContext) (string, error) {
	// UUID collisions are not a practical concern, but ids are
	// write-once, so verify the SETNX took effect anyway.
	for attempt := 0; attempt < 3; attempt++ {
		rec := &Record{
			ID:        uuid.NewString(),
			Finding:   finding,
			Repo:      repo,
			CreatedAt: time.Now().UTC(),
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("marshal record: %w", err)
		}

		ok, err := s.client.SetNX(ctx, keyPrefix+rec.ID, data, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("store record: %w", err)
		}
		if ok {
			return rec.ID, nil
		}
	}

	return "", errors.New("failed to allocate a fresh record id")
}

// Get fetches a record by id. Expired and unknown ids both return
// ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	return &rec, nil
}
