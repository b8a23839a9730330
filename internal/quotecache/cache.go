// Package quotecache keeps the latest known quote per
// fixture/market/outcome in Redis, so overlapping batch runs can skip
// re-persisting prices that have not moved.
package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XavierBriggs/Pythia/pkg/errkind"
	"github.com/XavierBriggs/Pythia/pkg/models"
)

// Prices closer than this are considered unchanged
const priceEpsilon = 1e-9

// Cache is a write-through latest-quote cache
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// cachedQuote is the minimal comparison payload stored per key
type cachedQuote struct {
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCache creates a quote cache with the given entry TTL
func NewCache(redisClient *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: redisClient, ttl: ttl}
}

// FilterChanged returns the subset of quotes that are new or differ from
// the cached latest price for their outcome. A cold or corrupt cache
// entry counts as changed, so the store never misses a quote.
func (c *Cache) FilterChanged(ctx context.Context, quotes []models.OddsQuote) ([]models.OddsQuote, error) {
	if len(quotes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(quotes))
	for i, q := range quotes {
		keys[i] = buildKey(q)
	}

	cachedValues, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil && err != redis.Nil {
		return nil, errkind.Wrap(errkind.Transient, "quotecache.mget", err)
	}

	changed := make([]models.OddsQuote, 0, len(quotes))
	for i, q := range quotes {
		if isChanged(q, cachedValues[i]) {
			changed = append(changed, q)
		}
	}
	return changed, nil
}

// UpdateLatest writes quotes through to the cache after they are
// persisted
func (c *Cache) UpdateLatest(ctx context.Context, quotes []models.OddsQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := c.redis.Pipeline()
	for _, q := range quotes {
		payload, err := json.Marshal(cachedQuote{
			Price:     q.Price,
			Source:    q.Source,
			Timestamp: q.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("marshal cached quote: %w", err)
		}
		pipe.Set(ctx, buildKey(q), payload, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, "quotecache.set", err)
	}
	return nil
}

// buildKey formats quotes:latest:{fixture}:{market}:{outcome}:{source}
func buildKey(q models.OddsQuote) string {
	return fmt.Sprintf("quotes:latest:%s:%s:%s:%s", q.FixtureID, q.Market, q.Outcome, q.Source)
}

// isChanged compares a quote against its cached value
func isChanged(q models.OddsQuote, cachedValue interface{}) bool {
	if cachedValue == nil {
		return true
	}
	cachedStr, ok := cachedValue.(string)
	if !ok {
		return true
	}

	var cached cachedQuote
	if err := json.Unmarshal([]byte(cachedStr), &cached); err != nil {
		return true
	}

	if math.Abs(q.Price-cached.Price) > priceEpsilon {
		return true
	}
	return q.Timestamp.After(cached.Timestamp)
}
