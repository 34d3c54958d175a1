package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

// LookupCacheRepository caches LMS search results in Redis so repeated
// reconciliation runs do not hammer the external directory. A nil client
// degrades to a cache that always misses.
type LookupCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewLookupCacheRepository constructs the cache repository.
func NewLookupCacheRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *LookupCacheRepository {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupCacheRepository{client: client, logger: logger, ttl: ttl}
}

// GetCandidates returns the cached candidate list for a lookup key.
func (r *LookupCacheRepository) GetCandidates(ctx context.Context, key string) ([]models.ExternalCandidate, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var candidates []models.ExternalCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, fmt.Errorf("unmarshal candidates for %s: %w", key, err)
	}
	return candidates, nil
}

// SetCandidates stores a candidate list. Empty results are cached too, so a
// student absent from the LMS does not trigger a lookup per run.
func (r *LookupCacheRepository) SetCandidates(ctx context.Context, key string, candidates []models.ExternalCandidate) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes all cached lookups.
func (r *LookupCacheRepository) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return nil
	}

	iter := r.client.Scan(ctx, 0, "lookup:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan lookups: %w", err)
	}
	return nil
}
