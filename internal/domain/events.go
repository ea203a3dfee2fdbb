package domain

import "time"

// Bus channels for round lifecycle events.
const (
	ChannelRounds = "rounds"
	ChannelBets   = "bets"
	ChannelClaims = "claims"
)

// RoundEvent is the payload published on the signal bus for every lifecycle
// transition and bet.
type RoundEvent struct {
	Type    string    `json:"type"` // opened, bet_placed, anticipating, resolved, claimed, closed
	RoundID string    `json:"round_id"`
	Owner   string    `json:"owner,omitempty"`
	Side    *uint8    `json:"side,omitempty"`
	Amount  uint64    `json:"amount,omitempty"`
	Winner  *uint8    `json:"winner,omitempty"`
	Pools   [2]uint64 `json:"pools"`
	At      time.Time `json:"at"`
}
