package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

func newCrank(h *harness) *Crank {
	return NewCrank(h.engine, admin, time.Second, slog.New(slog.DiscardHandler))
}

func TestCrankDrivesFullLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	c := newCrank(h)

	// First tick opens a round.
	require.NoError(t, c.tick(ctx))
	state, err := h.engine.State(ctx)
	require.NoError(t, err)
	roundID := state.Ring.Current()
	require.NotEmpty(t, roundID)

	_, err = h.engine.PlaceBet(ctx, "alice", roundID, domain.SideSOL, 100)
	require.NoError(t, err)

	// Betting window still open: tick is a no-op.
	require.NoError(t, c.tick(ctx))
	r, err := h.engine.Round(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseBetting, r.Phase)

	// Window elapsed: tick starts anticipation.
	h.advance(61)
	require.NoError(t, c.tick(ctx))
	r, err = h.engine.Round(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnticipating, r.Phase)

	// Anticipation elapsed: tick resolves.
	h.advance(61)
	h.setPrices(110, 205)
	require.NoError(t, c.tick(ctx))
	r, err = h.engine.Round(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResolved, r.Phase)
	assert.True(t, r.Settled)

	// Resolved round no longer blocks: next tick opens a fresh one.
	require.NoError(t, c.tick(ctx))
	state, err = h.engine.State(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, roundID, state.Ring.Current())
}

func TestCrankHoldsWhilePaused(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.Paused = true
	h := newHarness(t, params)
	c := newCrank(h)

	require.NoError(t, c.tick(ctx))
	state, err := h.engine.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Ring.Current())
}

func TestCrankRetriesOnStaleOracle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	c := newCrank(h)

	require.NoError(t, c.tick(ctx))
	state, err := h.engine.State(ctx)
	require.NoError(t, err)
	roundID := state.Ring.Current()

	h.advance(61)
	h.oracle.err = domain.ErrStaleOracle

	// Stale oracle is swallowed; the round stays in betting.
	require.NoError(t, c.tick(ctx))
	r, err := h.engine.Round(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseBetting, r.Phase)

	h.oracle.err = nil
	require.NoError(t, c.tick(ctx))
	r, err = h.engine.Round(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnticipating, r.Phase)
}
