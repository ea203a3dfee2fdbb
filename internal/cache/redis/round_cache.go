package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

const roundSnapshotTTL = 2 * time.Second

// RoundCache keeps short-lived JSON snapshots of rounds so the read API does
// not hit PostgreSQL on every poll. Writers invalidate by letting the TTL
// expire; the snapshot horizon is well under a phase duration.
//
// Key schema: round:{id} holds the JSON-encoded round.
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(id string) string {
	return "round:" + id
}

// Set stores a snapshot of the round.
func (rc *RoundCache) Set(ctx context.Context, r domain.Round) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: encode round %s: %w", r.ID, err)
	}
	if err := rc.rdb.Set(ctx, roundKey(r.ID), data, roundSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: cache round %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the cached snapshot, or domain.ErrNotFound when it has
// expired or was never set.
func (rc *RoundCache) Get(ctx context.Context, id string) (domain.Round, error) {
	data, err := rc.rdb.Get(ctx, roundKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("redis: get cached round %s: %w", id, err)
	}
	var r domain.Round
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Round{}, fmt.Errorf("redis: decode cached round %s: %w", id, err)
	}
	return r, nil
}

// Invalidate drops the snapshot for a round, used when an operation mutates
// it mid-TTL.
func (rc *RoundCache) Invalidate(ctx context.Context, id string) error {
	if err := rc.rdb.Del(ctx, roundKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate round %s: %w", id, err)
	}
	return nil
}
