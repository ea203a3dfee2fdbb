package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// Crank drives rounds through their phases on a timer: it opens a round when
// none is live, starts anticipation when the betting window elapses, resolves
// when the anticipation window elapses, and closes the round that rotated out
// of the tracking window.
type Crank struct {
	engine   *Engine
	admin    string
	interval time.Duration
	logger   *slog.Logger
}

// NewCrank creates a Crank that signs operations as admin and ticks at the
// given interval.
func NewCrank(engine *Engine, admin string, interval time.Duration, logger *slog.Logger) *Crank {
	if interval <= 0 {
		interval = time.Second
	}
	return &Crank{
		engine:   engine,
		admin:    admin,
		interval: interval,
		logger:   logger.With(slog.String("component", "crank")),
	}
}

// Run ticks until the context is cancelled. Individual tick failures are
// logged and retried on the next tick; the loop only stops with the context.
func (c *Crank) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.InfoContext(ctx, "crank started",
		slog.Duration("interval", c.interval),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				c.logger.WarnContext(ctx, "crank tick failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// tick advances the market by at most one transition. Timing errors from
// racing the deadlines are expected and swallowed; the next tick retries.
func (c *Crank) tick(ctx context.Context) error {
	state, err := c.engine.State(ctx)
	if err != nil {
		return err
	}

	if state.Ring.ToClose != "" {
		if err := c.engine.CloseRound(ctx, c.admin, state.Ring.ToClose); err != nil &&
			!errors.Is(err, domain.ErrBetsNotClaimed) && !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "close pending round failed",
				slog.String("round_id", state.Ring.ToClose),
				slog.String("error", err.Error()),
			)
		}
	}

	if !state.Ring.InProgress() {
		if state.Params.Paused {
			return nil
		}
		_, err := c.engine.OpenRound(ctx, c.admin)
		if errors.Is(err, domain.ErrRoundInProgress) || errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		return err
	}

	current := state.Ring.Current()
	if current == "" {
		return nil
	}
	round, err := c.engine.Round(ctx, current)
	if err != nil {
		return err
	}

	switch round.Phase {
	case domain.PhaseBetting:
		err = c.engine.StartAnticipation(ctx, c.admin, current)
		if errors.Is(err, domain.ErrBettingTooSoon) || errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		if errors.Is(err, domain.ErrStaleOracle) {
			c.logger.WarnContext(ctx, "oracle stale, retrying next tick",
				slog.String("round_id", current),
			)
			return nil
		}
		return err
	case domain.PhaseAnticipating:
		_, err = c.engine.ResolveRound(ctx, c.admin, current)
		if errors.Is(err, domain.ErrAnticipationTooSoon) || errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		if errors.Is(err, domain.ErrStaleOracle) {
			c.logger.WarnContext(ctx, "oracle stale, retrying next tick",
				slog.String("round_id", current),
			)
			return nil
		}
		return err
	default:
		return nil
	}
}
