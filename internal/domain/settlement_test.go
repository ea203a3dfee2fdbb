package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundWithPrices(initial, final [2]uint64) *Round {
	return &Round{InitialPrice: initial, FinalPrice: final}
}

func TestWinner_SolOutperforms(t *testing.T) {
	// SOL +10%, ETH +7.5%.
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 215})
	assert.Equal(t, SideSOL, r.Winner())
}

func TestWinner_EthOutperforms(t *testing.T) {
	// SOL +5%, ETH +10%.
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{105, 220})
	assert.Equal(t, SideETH, r.Winner())
}

func TestWinner_EqualChangesDraw(t *testing.T) {
	// Both +10%.
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 220})
	assert.Equal(t, WinnerDraw, r.Winner())
}

func TestWinner_BothFallLesserLossWins(t *testing.T) {
	// SOL -5%, ETH -10%: SOL's change is greater.
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{95, 180})
	assert.Equal(t, SideSOL, r.Winner())
}

func TestWinner_NearTieIsNotADraw(t *testing.T) {
	// Changes differ by one part in 1e9: must not collapse to a draw the
	// way float ratio equality could.
	r := roundWithPrices(
		[2]uint64{1_000_000_000, 1_000_000_000},
		[2]uint64{1_100_000_001, 1_100_000_000},
	)
	assert.Equal(t, SideSOL, r.Winner())
}

func TestPayout_ProportionalShareOfTotalPool(t *testing.T) {
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 215})
	r.Pools = [2]uint64{300, 700}
	require.Equal(t, SideSOL, r.Winner())

	assert.Equal(t, uint64(100), r.Payout(30, SideSOL))
	assert.Equal(t, uint64(0), r.Payout(30, SideETH))
}

func TestPayout_DrawRefundsStake(t *testing.T) {
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 220})
	r.Pools = [2]uint64{300, 700}
	assert.Equal(t, uint64(42), r.Payout(42, SideSOL))
	assert.Equal(t, uint64(42), r.Payout(42, SideETH))
}

func TestPayout_TruncatesTowardZero(t *testing.T) {
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 215})
	r.Pools = [2]uint64{3, 7} // total 10, winner pool 3
	// 1 * 10 / 3 = 3 (truncated from 3.33)
	assert.Equal(t, uint64(3), r.Payout(1, SideSOL))
}

func TestPayout_LargePoolsNoOverflow(t *testing.T) {
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 215})
	big := uint64(1) << 62
	r.Pools = [2]uint64{big, big}
	// amount * total would overflow uint64; the payout is exactly 2x.
	assert.Equal(t, big, r.Payout(big/2, SideSOL))
}

func TestOwedToWinners_SumsWinningSideOnly(t *testing.T) {
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 215})
	r.Pools = [2]uint64{300, 700}
	r.Ledger.Entries = []UserBet{
		{Owner: "a", Amount: 100, Side: SideSOL},
		{Owner: "b", Amount: 200, Side: SideSOL, Claimed: true},
		{Owner: "c", Amount: 700, Side: SideETH},
	}
	// a: 100*1000/300 = 333, b: 200*1000/300 = 666.
	assert.Equal(t, uint64(999), r.OwedToWinners())
}

func TestOwedToWinners_DrawSumsEveryStake(t *testing.T) {
	r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 220})
	r.Pools = [2]uint64{300, 700}
	r.Ledger.Entries = []UserBet{
		{Owner: "a", Amount: 100, Side: SideSOL},
		{Owner: "c", Amount: 700, Side: SideETH},
	}
	assert.Equal(t, uint64(800), r.OwedToWinners())
}

func TestHouseMatchAmount(t *testing.T) {
	assert.Equal(t, uint64(50), HouseMatchAmount(100, 50))
	assert.Equal(t, uint64(100), HouseMatchAmount(100, 500))
	assert.Equal(t, uint64(0), HouseMatchAmount(100, 0))
}

func TestHouseTopUp_RaisesFatSideMultiplier(t *testing.T) {
	// total=120, fat side 0 multiplier 120/100=1.2 < 1.5.
	side, amount := HouseTopUp([2]uint64{100, 20}, 1.5, 1_000_000)
	assert.Equal(t, SideETH, side)
	assert.Equal(t, uint64(30), amount) // 1.5*100 - 120
}

func TestHouseTopUp_CappedByRemaining(t *testing.T) {
	side, amount := HouseTopUp([2]uint64{100, 20}, 1.5, 10)
	assert.Equal(t, SideETH, side)
	assert.Equal(t, uint64(10), amount)
}

func TestHouseTopUp_NotNeeded(t *testing.T) {
	_, amount := HouseTopUp([2]uint64{100, 100}, 1.5, 1_000_000)
	assert.Equal(t, uint64(0), amount)
}

func TestHouseTopUp_EmptySideSkipped(t *testing.T) {
	_, amount := HouseTopUp([2]uint64{100, 0}, 1.5, 1_000_000)
	assert.Equal(t, uint64(0), amount)
}

func TestPayouts_NeverExceedVault(t *testing.T) {
	// Randomized stake distributions: the sum of all payouts must never
	// exceed the pool actually collected.
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 500; trial++ {
		r := roundWithPrices([2]uint64{100, 200}, [2]uint64{110, 215})
		if trial%3 == 0 {
			r.FinalPrice = [2]uint64{110, 220} // draw
		}
		var vault uint64
		n := 1 + rng.Intn(LedgerCapacity)
		for i := 0; i < n; i++ {
			amount := uint64(1 + rng.Intn(1_000_000))
			side := uint8(rng.Intn(2))
			_, err := r.Ledger.Add(string(rune('a'+i)), amount, side)
			require.NoError(t, err)
			r.Pools[side] += amount
			vault += amount
		}

		var paid uint64
		for _, e := range r.Ledger.Entries {
			paid += r.Payout(e.Amount, e.Side)
		}
		require.LessOrEqual(t, paid, vault,
			"trial %d: payouts exceed vault", trial)
	}
}
