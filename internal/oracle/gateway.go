// Package oracle gates settlement-critical price reads. The gateway checks
// the feed against an allow-list and rejects observations older than the
// staleness tolerance, so a wedged feed reader can never settle a round on
// old prices.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// DefaultStaleness is the maximum age of a usable observation.
const DefaultStaleness = 10 * time.Second

// PriceReader is the cache the feed reader keeps current.
type PriceReader interface {
	GetPrice(ctx context.Context, feedID string) (domain.PricePoint, error)
}

// Gateway implements domain.PriceOracle over a PriceReader.
type Gateway struct {
	reader    PriceReader
	allowed   map[string]struct{}
	staleness time.Duration
	now       func() time.Time
}

// NewGateway creates a Gateway allowing exactly the given feed IDs.
func NewGateway(reader PriceReader, feedIDs []string) *Gateway {
	allowed := make(map[string]struct{}, len(feedIDs))
	for _, id := range feedIDs {
		allowed[id] = struct{}{}
	}
	return &Gateway{
		reader:    reader,
		allowed:   allowed,
		staleness: DefaultStaleness,
		now:       time.Now,
	}
}

// WithStaleness overrides the staleness tolerance.
func (g *Gateway) WithStaleness(d time.Duration) *Gateway {
	if d > 0 {
		g.staleness = d
	}
	return g
}

// WithClock overrides the time source.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Price returns the latest observation for an allow-listed feed. It returns
// domain.ErrInvalidOracle for unknown feeds and domain.ErrStaleOracle when
// the observation is missing or too old.
func (g *Gateway) Price(ctx context.Context, feedID string) (domain.PricePoint, error) {
	if _, ok := g.allowed[feedID]; !ok {
		return domain.PricePoint{}, fmt.Errorf("oracle: feed %q: %w", feedID, domain.ErrInvalidOracle)
	}

	pt, err := g.reader.GetPrice(ctx, feedID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PricePoint{}, fmt.Errorf("oracle: feed %q has no observation: %w", feedID, domain.ErrStaleOracle)
		}
		return domain.PricePoint{}, fmt.Errorf("oracle: read feed %q: %w", feedID, err)
	}

	if age := g.now().Sub(pt.AsOf); age > g.staleness {
		return domain.PricePoint{}, fmt.Errorf("oracle: feed %q is %s old: %w", feedID, age.Round(time.Millisecond), domain.ErrStaleOracle)
	}
	if pt.Price == 0 {
		return domain.PricePoint{}, fmt.Errorf("oracle: feed %q reports zero price: %w", feedID, domain.ErrInvalidOracle)
	}
	return pt, nil
}

var _ domain.PriceOracle = (*Gateway)(nil)
