// internal/rentals/cache.go
package rentals

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"gamerent/internal/entitlement"
	"gamerent/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SummaryCache stores entitlement summaries between mutations.
//
// Get reports the user's current cache generation alongside the entry. Set
// only stores a summary if no Invalidate happened since the Get that returned
// gen, so a summary computed from a window read before a concurrent mutation
// committed is dropped.
type SummaryCache interface {
	Get(ctx context.Context, userID uuid.UUID) (summary *entitlement.Summary, gen int64, ok bool)
	Set(ctx context.Context, userID uuid.UUID, s entitlement.Summary, gen int64, now time.Time)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

const (
	cacheKeyPrefix      = "entitlement:"
	generationKeyPrefix = "entitlement:gen:"
	maxCacheTTL         = 10 * time.Minute
	generationTTL       = 24 * time.Hour

	// noGeneration marks a lookup that could not read the generation.
	noGeneration int64 = -1
)

var errStaleGeneration = errors.New("cache generation moved")

type cachedSummary struct {
	Gen     int64               `json:"gen"`
	Summary entitlement.Summary `json:"summary"`
}

type redisCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisCache caches summaries under entitlement:<user>. Entries never
// outlive the window they describe.
func NewRedisCache(rdb *redis.Client, logger *zap.Logger) SummaryCache {
	return &redisCache{rdb: rdb, logger: logger}
}

func cacheKey(userID uuid.UUID) string      { return cacheKeyPrefix + userID.String() }
func generationKey(userID uuid.UUID) string { return generationKeyPrefix + userID.String() }

func (c *redisCache) Get(ctx context.Context, userID uuid.UUID) (*entitlement.Summary, int64, bool) {
	vals, err := c.rdb.MGet(ctx, cacheKey(userID), generationKey(userID)).Result()
	if err != nil || len(vals) != 2 {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, noGeneration, false
	}
	gen, err := parseGeneration(vals[1])
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, noGeneration, false
	}

	raw, ok := vals[0].(string)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, gen, false
	}
	var entry cachedSummary
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, gen, false
	}
	if entry.Gen != gen {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, gen, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &entry.Summary, gen, true
}

func parseGeneration(v interface{}) (int64, error) {
	switch g := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(g, 10, 64)
	default:
		return 0, errors.New("unexpected generation value")
	}
}

func (c *redisCache) Set(ctx context.Context, userID uuid.UUID, s entitlement.Summary, gen int64, now time.Time) {
	ttl := summaryTTL(s, now)
	if ttl <= 0 || gen == noGeneration {
		return
	}
	raw, err := json.Marshal(cachedSummary{Gen: gen, Summary: s})
	if err != nil {
		return
	}

	key, gk := cacheKey(userID), generationKey(userID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}, gk)

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("entitlement summary outdated, not cached", zap.String("user_id", userID.String()))
	default:
		metrics.CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn("failed to cache entitlement summary", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Invalidate drops the entry and moves the generation forward, which also
// cancels any Set still holding the previous generation.
func (c *redisCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	key, gk := cacheKey(userID), generationKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("invalidate").Inc()
		c.logger.Warn("failed to invalidate entitlement summary", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func summaryTTL(s entitlement.Summary, now time.Time) time.Duration {
	ttl := maxCacheTTL
	if s.Active && s.WindowEnd != nil {
		if untilEnd := s.WindowEnd.Sub(now); untilEnd < ttl {
			ttl = untilEnd
		}
	}
	return ttl
}

type noopCache struct{}

// NoopCache disables caching.
func NoopCache() SummaryCache { return noopCache{} }

func (noopCache) Get(context.Context, uuid.UUID) (*entitlement.Summary, int64, bool) {
	return nil, 0, false
}
func (noopCache) Set(context.Context, uuid.UUID, entitlement.Summary, int64, time.Time) {}
func (noopCache) Invalidate(context.Context, uuid.UUID)                                 {}
