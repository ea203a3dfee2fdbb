package domain

import (
	"math"
	"math/big"
)

// Settlement arithmetic. All pool math is integer and truncating so repeated
// claims can never drain more than the vault holds. Winner comparison uses
// exact cross-multiplication instead of comparing two independently computed
// float ratios, which would route near-ties to an arbitrary winner.

// Winner determines the outcome from the recorded prices. SideSOL wins when
// SOL's relative price change strictly exceeds ETH's, SideETH in the opposite
// case, WinnerDraw on exactly equal changes.
//
// The comparison (fs-is)/is vs (fe-ie)/ie is evaluated exactly as
// (fs-is)*ie vs (fe-ie)*is in arbitrary precision.
func (r *Round) Winner() uint8 {
	solDelta := new(big.Int).Sub(
		new(big.Int).SetUint64(r.FinalPrice[SideSOL]),
		new(big.Int).SetUint64(r.InitialPrice[SideSOL]),
	)
	ethDelta := new(big.Int).Sub(
		new(big.Int).SetUint64(r.FinalPrice[SideETH]),
		new(big.Int).SetUint64(r.InitialPrice[SideETH]),
	)

	lhs := solDelta.Mul(solDelta, new(big.Int).SetUint64(r.InitialPrice[SideETH]))
	rhs := ethDelta.Mul(ethDelta, new(big.Int).SetUint64(r.InitialPrice[SideSOL]))

	switch lhs.Cmp(rhs) {
	case 0:
		return WinnerDraw
	case 1:
		return SideSOL
	default:
		return SideETH
	}
}

// Payout computes the amount owed for a stake of amount on side, given the
// round's outcome. Winning stakes receive a proportional share of the total
// pool, truncated; losing stakes receive zero; a draw refunds the stake.
func (r *Round) Payout(amount uint64, side uint8) uint64 {
	winner := r.Winner()
	if winner == WinnerDraw {
		return amount
	}
	if side != winner {
		return 0
	}
	winningPool := r.Pools[winner]
	if winningPool == 0 {
		return 0
	}

	// amount * (pool0 + pool1) / winningPool, in arbitrary precision since
	// the product can exceed 64 bits.
	total := new(big.Int).Add(
		new(big.Int).SetUint64(r.Pools[0]),
		new(big.Int).SetUint64(r.Pools[1]),
	)
	out := new(big.Int).Mul(new(big.Int).SetUint64(amount), total)
	out.Quo(out, new(big.Int).SetUint64(winningPool))
	return out.Uint64()
}

// OwedToWinners sums the payouts of every winning-side ledger entry, claimed
// or not. On a draw it sums every stake. The house's matched stake is not in
// the ledger; its share is whatever remains in the vault afterwards.
func (r *Round) OwedToWinners() uint64 {
	winner := r.Winner()
	var owed uint64
	for _, e := range r.Ledger.Entries {
		if winner == WinnerDraw || e.Side == winner {
			owed += r.Payout(e.Amount, e.Side)
		}
	}
	return owed
}

// HouseMatchAmount sizes the house's auto-match for a first bet of betSize
// whose opposite side is empty. The engine still has to verify the house
// balance covers the match.
func HouseMatchAmount(betSize, maxHouseMatch uint64) uint64 {
	return min(betSize, maxHouseMatch)
}

// HouseTopUp sizes the pre-anticipation subsidy that guarantees the minimum
// payout multiplier. It returns the side the house should add to and the
// amount; amount is zero when no top-up is needed or possible.
//
// The fat side's implied multiplier is total/fat; adding x to the thin side
// raises it to (total+x)/fat. remaining caps the house's additional exposure
// (max_house_bet_size minus what it already staked, and its balance).
func HouseTopUp(pools [2]uint64, minMultiplier float64, remaining uint64) (uint8, uint64) {
	if pools[0] == 0 || pools[1] == 0 || minMultiplier <= 1 || remaining == 0 {
		return SideNone, 0
	}

	fat := SideSOL
	if pools[SideETH] > pools[SideSOL] {
		fat = SideETH
	}
	thin := 1 - fat

	total := pools[0] + pools[1]
	needed := minMultiplier * float64(pools[fat])
	if float64(total) >= needed {
		return SideNone, 0
	}

	topUp := uint64(math.Ceil(needed - float64(total)))
	if topUp > remaining {
		topUp = remaining
	}
	return thin, topUp
}
