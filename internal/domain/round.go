// Package domain holds the core entities of the SOL-vs-ETH parimutuel market:
// rounds, the per-round bet ledger, global market state, and the settlement
// arithmetic. It also defines the store and collaborator interfaces the
// engine depends on, so concrete PostgreSQL/Redis implementations stay out of
// the core.
package domain

import "time"

// Side identifies which asset a stake backs.
const (
	SideSOL uint8 = 0
	SideETH uint8 = 1

	// WinnerDraw is the winner code for equal price changes.
	WinnerDraw uint8 = 2

	// SideNone marks an unset house side.
	SideNone uint8 = 255
)

// ValidSide reports whether s is a bettable side.
func ValidSide(s uint8) bool {
	return s == SideSOL || s == SideETH
}

// RoundPhase is the lifecycle phase of a round. Transitions are one-way:
// Betting -> Anticipating -> Resolved.
type RoundPhase string

const (
	PhaseBetting      RoundPhase = "betting"
	PhaseAnticipating RoundPhase = "anticipating"
	PhaseResolved     RoundPhase = "resolved"
)

// Round is one instance of the two-sided market: a betting window, an
// anticipation window awaiting the final price read, and a resolution.
// Prices are fixed-point integers as reported by the oracle. Pools hold the
// cumulative stake per side, user and house contributions combined.
type Round struct {
	ID string

	Phase RoundPhase

	// InitialPrice and FinalPrice are indexed by side (SideSOL, SideETH).
	// Initial prices are read at anticipation start, final at resolution.
	InitialPrice [2]uint64
	FinalPrice   [2]uint64

	// Pools is the stake on each side, indexed by side.
	Pools [2]uint64

	// HouseSide and HouseAmount record the house's auto-matched stake.
	// HouseSide is SideNone until the house has matched.
	HouseSide   uint8
	HouseAmount uint64

	// Unix seconds. AnticipationStart and AnticipationEnd are zero until
	// the respective transition happens.
	BettingStart      uint64
	AnticipationStart uint64
	AnticipationEnd   uint64

	Settled bool

	// VaultRef names the custodial account holding all pooled funds for
	// this round.
	VaultRef string

	Ledger Ledger

	CreatedAt time.Time
}

// TotalPool returns the combined stake across both sides.
func (r *Round) TotalPool() uint64 {
	return r.Pools[0] + r.Pools[1]
}

// BettingActive reports whether bets are still accepted at time now.
func (r *Round) BettingActive(now uint64, bettingPeriod uint64) bool {
	return now <= r.BettingStart+bettingPeriod
}

// Status maps the round phase to the denormalized record status kept in the
// global ring.
func (r *Round) Status() RoundStatus {
	switch r.Phase {
	case PhaseAnticipating:
		return StatusAnticipating
	case PhaseResolved:
		return StatusResolved
	default:
		return StatusBetting
	}
}
