package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

type stubReader struct {
	points map[string]domain.PricePoint
}

func (r *stubReader) GetPrice(ctx context.Context, feedID string) (domain.PricePoint, error) {
	pt, ok := r.points[feedID]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return pt, nil
}

func TestGateway(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reader := &stubReader{points: map[string]domain.PricePoint{
		"sol": {Price: 15_000_000_000, AsOf: now.Add(-time.Second)},
		"old": {Price: 20_000_000_000, AsOf: now.Add(-time.Minute)},
		"bad": {Price: 0, AsOf: now},
	}}
	gw := NewGateway(reader, []string{"sol", "old", "bad"}).
		WithClock(func() time.Time { return now })

	pt, err := gw.Price(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, uint64(15_000_000_000), pt.Price)

	_, err = gw.Price(context.Background(), "eth")
	assert.ErrorIs(t, err, domain.ErrInvalidOracle)

	_, err = gw.Price(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrStaleOracle)

	_, err = gw.Price(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidOracle)
}

func TestGatewayMissingObservation(t *testing.T) {
	gw := NewGateway(&stubReader{points: map[string]domain.PricePoint{}}, []string{"sol"})

	_, err := gw.Price(context.Background(), "sol")
	assert.ErrorIs(t, err, domain.ErrStaleOracle)
}

func TestGatewayStalenessOverride(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reader := &stubReader{points: map[string]domain.PricePoint{
		"sol": {Price: 1, AsOf: now.Add(-30 * time.Second)},
	}}
	gw := NewGateway(reader, []string{"sol"}).
		WithStaleness(time.Minute).
		WithClock(func() time.Time { return now })

	_, err := gw.Price(context.Background(), "sol")
	require.NoError(t, err)
}
