package domain

import "errors"

// Sentinel errors returned by the settlement engine and its stores. Handlers
// and callers match on these with errors.Is; the wrapped text carries context.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAdmin  = errors.New("invalid admin, you are not the admin of this market")
	ErrInvalidOracle = errors.New("invalid oracle")
	ErrStaleOracle   = errors.New("oracle didn't update within the staleness tolerance")
	ErrInvalidSide   = errors.New("invalid side")
	ErrInvalidSize   = errors.New("invalid bet size")

	ErrHouseBankrupt       = errors.New("the house wallet doesn't have enough funds")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMaxUserBetExceeded  = errors.New("max user bet exceeded")
	ErrNoSpaceLeft         = errors.New("no space left")

	ErrAlreadyBet         = errors.New("you already have a bet on the other side")
	ErrNoBetFound         = errors.New("no bet found")
	ErrAlreadyClaimed     = errors.New("bet already claimed")
	ErrNotOnWinningSide   = errors.New("you are not on the winning side")
	ErrBetNotSettled      = errors.New("bet not settled")
	ErrBetAlreadySettled  = errors.New("bet already settled")
	ErrBetsNotClaimed     = errors.New("not all bets are claimed")
	ErrVaultNotEmpty      = errors.New("vault not empty")
	ErrRoundInProgress    = errors.New("round in progress")
	ErrMarketPaused       = errors.New("market is paused")
	ErrRoundNotCloseable  = errors.New("too early to close the round")
	ErrBettingInactive    = errors.New("betting is inactive")
	ErrBettingTooSoon     = errors.New("betting period ending too soon")
	ErrAnticipationTooSoon = errors.New("anticipation period ending too soon")

	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
