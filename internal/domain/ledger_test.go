package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAdd_AccumulatesSameSide(t *testing.T) {
	var l Ledger
	total, err := l.Add("alice", 100, SideSOL)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), total)

	total, err = l.Add("alice", 50, SideSOL)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), total)
	assert.Len(t, l.Entries, 1)
}

func TestLedgerAdd_RejectsSideSwitch(t *testing.T) {
	var l Ledger
	_, err := l.Add("alice", 100, SideSOL)
	require.NoError(t, err)

	_, err = l.Add("alice", 50, SideETH)
	assert.ErrorIs(t, err, ErrAlreadyBet)

	// Entry untouched.
	e, ok := l.Get("alice")
	require.True(t, ok)
	assert.Equal(t, uint64(100), e.Amount)
	assert.Equal(t, SideSOL, e.Side)
}

func TestLedgerAdd_CapacityBound(t *testing.T) {
	var l Ledger
	for i := 0; i < LedgerCapacity; i++ {
		_, err := l.Add(fmt.Sprintf("user-%d", i), 10, SideSOL)
		require.NoError(t, err)
	}

	_, err := l.Add("one-too-many", 10, SideSOL)
	assert.ErrorIs(t, err, ErrNoSpaceLeft)
	assert.Len(t, l.Entries, LedgerCapacity)

	// An existing owner can still top up.
	total, err := l.Add("user-0", 5, SideSOL)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), total)
}

func TestLedgerMarkClaimed(t *testing.T) {
	var l Ledger
	_, err := l.Add("alice", 100, SideSOL)
	require.NoError(t, err)

	require.NoError(t, l.MarkClaimed("alice"))
	e, _ := l.Get("alice")
	assert.True(t, e.Claimed)

	assert.ErrorIs(t, l.MarkClaimed("nobody"), ErrNoBetFound)
}

func TestLedgerAllClaimed(t *testing.T) {
	var l Ledger
	_, _ = l.Add("winner", 100, SideSOL)
	_, _ = l.Add("loser", 100, SideETH)

	assert.False(t, l.AllClaimed(SideSOL))

	// Losing side is exempt.
	require.NoError(t, l.MarkClaimed("winner"))
	assert.True(t, l.AllClaimed(SideSOL))

	// Draw counts every entry as winning.
	assert.False(t, l.AllClaimed(WinnerDraw))
	require.NoError(t, l.MarkClaimed("loser"))
	assert.True(t, l.AllClaimed(WinnerDraw))
}
