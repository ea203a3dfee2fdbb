package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRing_AddRotatesAndEvicts(t *testing.T) {
	var ring RecordRing
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		ring.Add(id)
	}
	assert.Equal(t, "r5", ring.Current())
	assert.Empty(t, ring.ToClose)

	ring.Add("r6")
	assert.Equal(t, "r6", ring.Current())
	assert.Equal(t, "r1", ring.ToClose)
	assert.False(t, ring.Contains("r1"))
	assert.True(t, ring.Contains("r2"))
}

func TestRecordRing_InProgress(t *testing.T) {
	var ring RecordRing
	assert.False(t, ring.InProgress())

	ring.Add("r1")
	assert.True(t, ring.InProgress())

	ring.Modify("r1", StatusAnticipating)
	assert.True(t, ring.InProgress())

	ring.Modify("r1", StatusResolved)
	assert.False(t, ring.InProgress())
}

func TestRecordRing_ModifyMissingIsNoop(t *testing.T) {
	var ring RecordRing
	ring.Add("r1")
	ring.Modify("ghost", StatusResolved)
	assert.Equal(t, StatusBetting, ring.Records[0].Status)
}

func TestRecordRing_Reset(t *testing.T) {
	var ring RecordRing
	ring.Add("r1")
	ring.Add("r2")
	ring.Reset()
	assert.False(t, ring.InProgress())
	assert.Empty(t, ring.ToClose)
	assert.Empty(t, ring.Current())
}

func TestMarketState_ConfirmCrankAdmin(t *testing.T) {
	state := MarketState{Params: MarketParams{CrankAdmin: "crank"}, Owner: "owner"}

	require.NoError(t, state.ConfirmCrankAdmin("crank"))
	assert.ErrorIs(t, state.ConfirmCrankAdmin("owner"), ErrInvalidAdmin)
	assert.ErrorIs(t, state.ConfirmCrankAdmin(""), ErrInvalidAdmin)

	require.NoError(t, state.ConfirmOwner("owner"))
	assert.ErrorIs(t, state.ConfirmOwner("crank"), ErrUnauthorized)
}

func TestRoundBettingActive(t *testing.T) {
	r := Round{BettingStart: 1000}
	assert.True(t, r.BettingActive(1060, 60))
	assert.False(t, r.BettingActive(1061, 60))
}
