package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// RoundWatcher subscribes to the round event channels and turns lifecycle
// events into operator notifications.
type RoundWatcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRoundWatcher creates a RoundWatcher on the given bus and notifier.
func NewRoundWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *RoundWatcher {
	return &RoundWatcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "round_watcher")),
	}
}

// Run consumes round events until ctx is cancelled.
func (w *RoundWatcher) Run(ctx context.Context) error {
	msgCh, stop, err := w.bus.Subscribe(ctx, domain.ChannelRounds)
	if err != nil {
		return err
	}
	defer stop()

	w.logger.Info("round watcher started")
	defer w.logger.Info("round watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			w.handle(ctx, msg.Data)
		}
	}
}

func (w *RoundWatcher) handle(ctx context.Context, data []byte) {
	var ev domain.RoundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Debug("unparseable round event", slog.String("error", err.Error()))
		return
	}

	var title, message string
	switch ev.Type {
	case "opened":
		title = "Round opened"
		message = fmt.Sprintf("Round %s is taking bets.", ev.RoundID)
	case "resolved":
		title = "Round resolved"
		message = fmt.Sprintf("Round %s resolved: %s. Pools: SOL %d, ETH %d.",
			ev.RoundID, winnerLabel(ev.Winner), ev.Pools[0], ev.Pools[1])
	case "closed":
		title = "Round closed"
		message = fmt.Sprintf("Round %s archived and removed.", ev.RoundID)
	default:
		return
	}

	if err := w.notifier.Notify(ctx, ev.Type, title, message); err != nil {
		w.logger.Warn("notify failed",
			slog.String("event", ev.Type),
			slog.String("round_id", ev.RoundID),
			slog.String("error", err.Error()),
		)
	}
}

func winnerLabel(winner *uint8) string {
	if winner == nil {
		return "unknown"
	}
	switch *winner {
	case domain.SideSOL:
		return "SOL wins"
	case domain.SideETH:
		return "ETH wins"
	case domain.WinnerDraw:
		return "draw, stakes refunded"
	default:
		return "unknown"
	}
}
