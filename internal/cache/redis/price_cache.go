package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// PriceCache holds the latest fixed-point price per oracle feed. The feed
// reader writes it on every tick; the oracle gateway reads it when a round
// transition needs a price.
//
// Each feed is a hash at "price:{feedID}" with fields "price" and "ts"
// (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(feedID string) string {
	return "price:" + feedID
}

// SetPrice stores the latest observation for a feed.
func (pc *PriceCache) SetPrice(ctx context.Context, feedID string, price uint64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatUint(price, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(feedID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", feedID, err)
	}
	return nil
}

// GetPrice retrieves the latest observation for a feed. It returns
// domain.ErrNotFound when the feed has never been written.
func (pc *PriceCache) GetPrice(ctx context.Context, feedID string) (domain.PricePoint, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(feedID)).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get price %s: %w", feedID, err)
	}
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	price, err := strconv.ParseUint(priceStr, 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse price %s: %w", feedID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse ts %s: %w", feedID, err)
	}

	return domain.PricePoint{Price: price, AsOf: time.Unix(0, tsNano)}, nil
}
