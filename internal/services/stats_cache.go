package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/repository"
)

// StatsCacheService handles caching for dashboard aggregates
type StatsCacheService struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// CachedStats represents the cached dashboard data
type CachedStats struct {
	Customers     *repository.GlobalStats       `json:"customers,omitempty"`
	Subscriptions *repository.SubscriptionStats `json:"subscriptions,omitempty"`
	Sources       []repository.SourceBreakdown  `json:"sources,omitempty"`
	CachedAt      time.Time                     `json:"cached_at"`
}

// NewStatsCacheService creates a new stats cache service
func NewStatsCacheService(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *StatsCacheService {
	if ttl == 0 {
		ttl = 5 * time.Minute // Default TTL
	}
	return &StatsCacheService{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// cacheKey generates a cache key for a stats scope
func (s *StatsCacheService) cacheKey(scope string) string {
	return fmt.Sprintf("attribution:stats:%s", scope)
}

// Get retrieves cached stats for a scope
func (s *StatsCacheService) Get(ctx context.Context, scope string) (*CachedStats, error) {
	if s.redis == nil {
		return nil, nil // No cache available
	}

	key := s.cacheKey(scope)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		s.logger.Warn("failed to get stats from cache", zap.Error(err), zap.String("key", key))
		return nil, nil
	}

	var cached CachedStats
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn("failed to unmarshal cached stats", zap.Error(err))
		return nil, nil
	}

	s.logger.Debug("cache hit for stats", zap.String("scope", scope))
	return &cached, nil
}

// Set stores stats in cache
func (s *StatsCacheService) Set(ctx context.Context, scope string, stats *CachedStats) error {
	if s.redis == nil {
		return nil // No cache available
	}

	stats.CachedAt = time.Now()
	key := s.cacheKey(scope)

	data, err := json.Marshal(stats)
	if err != nil {
		s.logger.Warn("failed to marshal stats for cache", zap.Error(err))
		return err
	}

	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to set stats in cache", zap.Error(err), zap.String("key", key))
		return err
	}

	s.logger.Debug("cached stats", zap.String("scope", scope), zap.Duration("ttl", s.ttl))
	return nil
}

// Invalidate removes all cached stats. Called after any write that moves
// the dashboard numbers: upload success, upload deletion, order ingest.
func (s *StatsCacheService) Invalidate(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}

	keys, err := s.redis.Keys(ctx, "attribution:stats:*").Result()
	if err != nil {
		s.logger.Warn("failed to find cache keys to invalidate", zap.Error(err))
		return err
	}

	if len(keys) > 0 {
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
			return err
		}
		s.logger.Debug("invalidated stats cache", zap.Int("keys_removed", len(keys)))
	}

	return nil
}
