package feed

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		mantissa int64
		expo     int32
		want     uint64
		ok       bool
	}{
		{"pyth typical expo -8", 15_012_345_678, -8, 15_012_345_678, true},
		{"expo -5 scales up", 1_500_000, -5, 1_500_000_000, true},
		{"expo 0 scales up", 42, 0, 4_200_000_000, true},
		{"expo -10 scales down", 123_456_789_012, -10, 12_345_678_901, true},
		{"zero price rejected", 0, -8, 0, false},
		{"negative price rejected", -5, -8, 0, false},
		{"overflow rejected", 1 << 62, 2, 0, false},
		{"underflow to zero rejected", 9, -10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalize(tt.mantissa, tt.expo)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type captureWriter struct {
	feedID string
	price  uint64
	ts     time.Time
	calls  int
}

func (w *captureWriter) SetPrice(ctx context.Context, feedID string, price uint64, ts time.Time) error {
	w.feedID = feedID
	w.price = price
	w.ts = ts
	w.calls++
	return nil
}

func TestHandleMessage(t *testing.T) {
	writer := &captureWriter{}
	f := NewHermesFeed("wss://example.invalid/ws", []string{"abc"}, writer, slog.New(slog.DiscardHandler))

	f.handleMessage(context.Background(), []byte(`{
		"type": "price_update",
		"price_feed": {
			"id": "abc",
			"price": {"price": "15012345678", "expo": -8, "publish_time": 1700000000}
		}
	}`))

	require.Equal(t, 1, writer.calls)
	assert.Equal(t, "abc", writer.feedID)
	assert.Equal(t, uint64(15_012_345_678), writer.price)
	assert.Equal(t, time.Unix(1_700_000_000, 0), writer.ts)
}

func TestHandleMessageIgnoresOtherTypes(t *testing.T) {
	writer := &captureWriter{}
	f := NewHermesFeed("wss://example.invalid/ws", []string{"abc"}, writer, slog.New(slog.DiscardHandler))

	f.handleMessage(context.Background(), []byte(`{"type":"response","status":"success"}`))
	f.handleMessage(context.Background(), []byte(`not json`))
	f.handleMessage(context.Background(), []byte(`{
		"type": "price_update",
		"price_feed": {"id": "abc", "price": {"price": "-1", "expo": -8}}
	}`))

	assert.Equal(t, 0, writer.calls)
}
