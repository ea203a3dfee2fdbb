package domain

import (
	"context"
	"time"
)

// MarketStateStore persists the singleton market state.
type MarketStateStore interface {
	// Get returns the singleton state, or ErrNotFound before Init.
	Get(ctx context.Context) (MarketState, error)
	// Init creates the singleton. It fails when the state already exists.
	Init(ctx context.Context, state MarketState) error
	// Save overwrites params, owner, house account, and the record ring.
	Save(ctx context.Context, state MarketState) error
}

// RoundStore persists rounds. Implementations store the ledger separately
// (see BetStore); Get returns the round without ledger entries.
type RoundStore interface {
	Create(ctx context.Context, r Round) error
	Get(ctx context.Context, id string) (Round, error)
	Save(ctx context.Context, r Round) error
	Delete(ctx context.Context, id string) error
}

// BetStore persists ledger entries as one row per (round, owner).
type BetStore interface {
	List(ctx context.Context, roundID string) ([]UserBet, error)
	// Replace writes the full ledger for a round, upserting entries.
	Replace(ctx context.Context, roundID string, entries []UserBet) error
	DeleteByRound(ctx context.Context, roundID string) error
}

// Treasury moves value between named custodial balances. It is the
// funds-transfer collaborator: the engine authorizes moves, the treasury
// executes them.
type Treasury interface {
	// Move debits from and credits to. It returns ErrInsufficientBalance
	// when the source balance is short.
	Move(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
	// Credit mints balance into an account (deposits are settled
	// off-system; this records them).
	Credit(ctx context.Context, account string, amount uint64) error
}

// StoreSet bundles the transactional stores an engine operation works with.
type StoreSet struct {
	State    MarketStateStore
	Rounds   RoundStore
	Bets     BetStore
	Treasury Treasury
}

// UnitOfWork runs fn against a StoreSet inside one atomic transaction.
// Either every mutation in fn commits or none does; the engine relies on
// this for its no-partial-state guarantee.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s StoreSet) error) error
}

// PricePoint is one oracle price observation.
type PricePoint struct {
	Price uint64
	AsOf  time.Time
}

// PriceOracle resolves an allow-listed feed identity to a fresh price.
// Implementations return ErrInvalidOracle for unknown feeds and
// ErrStaleOracle when the latest observation is older than the configured
// tolerance.
type PriceOracle interface {
	Price(ctx context.Context, feedID string) (PricePoint, error)
}

// SignalBus publishes round lifecycle events for downstream consumers
// (websocket hub, notifiers).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func(), error)
}

// BusMessage is one message delivered by a SignalBus subscription.
type BusMessage struct {
	Channel string
	Data    []byte
}

// LockManager provides a cross-process mutex used to serialize crank
// operations across replicas.
type LockManager interface {
	// Acquire returns an unlock func, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds how often a key may perform an action.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Archiver writes a closed round and its ledger to long-term storage.
type Archiver interface {
	ArchiveRound(ctx context.Context, r Round) error
}
