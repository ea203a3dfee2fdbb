// Package feed keeps the oracle price cache current. It holds a websocket
// subscription to a Pyth Hermes endpoint and writes every price update for
// the configured feeds into the cache the oracle gateway reads from.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before reconnecting.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second

	// fixedPointDecimals is the decimal scale cached prices are normalized
	// to, whatever exponent the feed reports.
	fixedPointDecimals = 8
)

// PriceWriter receives every normalized price observation.
type PriceWriter interface {
	SetPrice(ctx context.Context, feedID string, price uint64, ts time.Time) error
}

// HermesFeed subscribes to a Pyth Hermes websocket endpoint for the given
// feed IDs and writes each update to the PriceWriter. It reconnects with
// exponential backoff on disconnect.
type HermesFeed struct {
	wsURL   string
	feedIDs []string
	writer  PriceWriter
	logger  *slog.Logger
}

// NewHermesFeed creates a feed for the given Hermes endpoint and feed IDs.
func NewHermesFeed(wsURL string, feedIDs []string, writer PriceWriter, logger *slog.Logger) *HermesFeed {
	return &HermesFeed{
		wsURL:   wsURL,
		feedIDs: feedIDs,
		writer:  writer,
		logger:  logger.With(slog.String("component", "hermes_feed")),
	}
}

// Run connects and pumps price updates until ctx is cancelled.
func (f *HermesFeed) Run(ctx context.Context) error {
	if len(f.feedIDs) == 0 {
		f.logger.Info("no feed IDs configured, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("hermes ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// subscribeCommand is the Hermes subscription envelope.
type subscribeCommand struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// priceUpdate is the subset of the Hermes price_update message the feed
// consumes.
type priceUpdate struct {
	Type      string `json:"type"`
	PriceFeed struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"price_feed"`
}

func (f *HermesFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", IDs: f.feedIDs}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("hermes ws subscribed", slog.Int("feeds", len(f.feedIDs)))

	// Close the connection when ctx ends so ReadMessage unblocks, and ping
	// periodically to keep the subscription alive.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *HermesFeed) handleMessage(ctx context.Context, raw []byte) {
	var update priceUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return
	}
	if update.Type != "price_update" || update.PriceFeed.ID == "" {
		return
	}

	mantissa, err := strconv.ParseInt(update.PriceFeed.Price.Price, 10, 64)
	if err != nil {
		f.logger.Debug("unparseable price",
			slog.String("feed_id", update.PriceFeed.ID),
			slog.String("price", update.PriceFeed.Price.Price),
		)
		return
	}

	price, ok := normalize(mantissa, update.PriceFeed.Price.Expo)
	if !ok {
		f.logger.Warn("price out of range",
			slog.String("feed_id", update.PriceFeed.ID),
			slog.Int64("mantissa", mantissa),
			slog.Int("expo", int(update.PriceFeed.Price.Expo)),
		)
		return
	}

	ts := time.Unix(update.PriceFeed.Price.PublishTime, 0)
	if err := f.writer.SetPrice(ctx, update.PriceFeed.ID, price, ts); err != nil {
		f.logger.Warn("write price failed",
			slog.String("feed_id", update.PriceFeed.ID),
			slog.String("error", err.Error()),
		)
	}
}

// normalize rescales a mantissa/exponent pair to fixedPointDecimals decimal
// places. It reports false for non-positive prices and values that do not
// fit in a uint64.
func normalize(mantissa int64, expo int32) (uint64, bool) {
	if mantissa <= 0 {
		return 0, false
	}
	v := uint64(mantissa)

	shift := int(expo) + fixedPointDecimals
	for ; shift > 0; shift-- {
		if v > (1<<64-1)/10 {
			return 0, false
		}
		v *= 10
	}
	for ; shift < 0; shift++ {
		v /= 10
	}
	if v == 0 {
		return 0, false
	}
	return v, true
}
