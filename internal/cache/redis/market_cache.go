package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/redis/go-redis/v9"
)

// MarketCache implements domain.MarketCache using Redis strings holding a
// JSON-serialized market listing.
//
// Key schema:
//
//	markets:{status}:{series}:{event}:{limit}  - JSON array of markets
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketListKey(f domain.MarketFilter) string {
	return "markets:" + f.Status + ":" + f.SeriesTicker + ":" + f.EventTicker + ":" + strconv.Itoa(f.Limit)
}

// GetList returns the cached listing for filter.
// It returns domain.ErrNotFound when nothing is cached.
func (mc *MarketCache) GetList(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	key := marketListKey(filter)
	data, err := mc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get markets %s: %w", key, err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal markets %s: %w", key, err)
	}
	return markets, nil
}

// SetList stores the listing for filter with the given TTL.
func (mc *MarketCache) SetList(ctx context.Context, filter domain.MarketFilter, markets []domain.Market, ttl time.Duration) error {
	key := marketListKey(filter)
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal markets %s: %w", key, err)
	}
	if err := mc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set markets %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
