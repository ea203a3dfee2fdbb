// Package engine implements the settlement operations that drive a round
// through its lifecycle: open, bet, anticipate, resolve, claim, close, plus
// the admin configuration and house-funds operations. Every operation runs
// inside one unit-of-work transaction and re-validates admin, phase, timing,
// and oracle preconditions before mutating anything.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

const (
	// marginOfError relaxes the resolve deadline by a couple of seconds so
	// a crank tick landing just before the boundary is not rejected.
	marginOfError = 2

	// feeDivisor converts basis points to a fraction.
	feeDivisor = 10_000

	// crankLockKey serializes admin transitions across replicas.
	crankLockKey = "crank"
	crankLockTTL = 15 * time.Second

	// betRateLimit bounds bets per owner per second.
	betRateLimit = 5
)

// Config carries the oracle feed identities the engine trades on.
type Config struct {
	SolFeedID string
	EthFeedID string
}

// Engine executes settlement operations against the persistent market state.
type Engine struct {
	uow     domain.UnitOfWork
	oracle  domain.PriceOracle
	cfg     Config
	bus     domain.SignalBus
	limiter domain.RateLimiter
	locks   domain.LockManager
	archive domain.Archiver
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Engine. Bus, limiter, locks, and archiver are optional and
// attached with the With* builders.
func New(uow domain.UnitOfWork, oracle domain.PriceOracle, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		uow:    uow,
		oracle: oracle,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// WithSignalBus attaches an event bus for round lifecycle events.
func (e *Engine) WithSignalBus(bus domain.SignalBus) *Engine { e.bus = bus; return e }

// WithRateLimiter attaches a per-owner bet rate limiter.
func (e *Engine) WithRateLimiter(l domain.RateLimiter) *Engine { e.limiter = l; return e }

// WithLockManager attaches a cross-process lock for crank operations.
func (e *Engine) WithLockManager(l domain.LockManager) *Engine { e.locks = l; return e }

// WithArchiver attaches long-term storage for closed rounds.
func (e *Engine) WithArchiver(a domain.Archiver) *Engine { e.archive = a; return e }

// WithClock overrides the time source. Tests use this to step through phase
// windows deterministically.
func (e *Engine) WithClock(now func() time.Time) *Engine { e.now = now; return e }

func (e *Engine) unix() uint64 {
	return uint64(e.now().Unix())
}

// VaultAccount names the custodial balance for a round's pooled funds.
func VaultAccount(roundID string) string {
	return "vault:" + roundID
}

// withCrankLock serializes fn across replicas when a lock manager is wired.
func (e *Engine) withCrankLock(ctx context.Context, fn func() error) error {
	if e.locks == nil {
		return fn()
	}
	unlock, err := e.locks.Acquire(ctx, crankLockKey, crankLockTTL)
	if err != nil {
		return fmt.Errorf("engine: acquire crank lock: %w", err)
	}
	defer unlock()
	return fn()
}

// Bootstrap creates the singleton market state when it does not exist yet.
func (e *Engine) Bootstrap(ctx context.Context, initial domain.MarketState) error {
	return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		_, err := s.State.Get(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		e.logger.InfoContext(ctx, "initializing market state",
			slog.String("house_account", initial.HouseAccount),
		)
		return s.State.Init(ctx, initial)
	})
}

// State returns the current market state.
func (e *Engine) State(ctx context.Context) (domain.MarketState, error) {
	var out domain.MarketState
	err := e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		state, err := s.State.Get(ctx)
		if err != nil {
			return err
		}
		out = state
		return nil
	})
	return out, err
}

// Round returns a round with its ledger loaded.
func (e *Engine) Round(ctx context.Context, roundID string) (domain.Round, error) {
	var out domain.Round
	err := e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		r, err := e.loadRound(ctx, s, roundID)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (e *Engine) loadRound(ctx context.Context, s domain.StoreSet, roundID string) (domain.Round, error) {
	r, err := s.Rounds.Get(ctx, roundID)
	if err != nil {
		return domain.Round{}, err
	}
	entries, err := s.Bets.List(ctx, roundID)
	if err != nil {
		return domain.Round{}, err
	}
	r.Ledger.Entries = entries
	return r, nil
}

// OpenRound starts a new betting round. It refuses while any tracked round
// has not resolved, so at most one round is ever live.
func (e *Engine) OpenRound(ctx context.Context, signer string) (domain.Round, error) {
	var round domain.Round
	err := e.withCrankLock(ctx, func() error {
		return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
			state, err := s.State.Get(ctx)
			if err != nil {
				return err
			}
			if err := state.ConfirmCrankAdmin(signer); err != nil {
				return err
			}
			if state.Params.Paused {
				return domain.ErrMarketPaused
			}
			if state.Ring.InProgress() {
				return domain.ErrRoundInProgress
			}

			id := uuid.NewString()
			round = domain.Round{
				ID:           id,
				Phase:        domain.PhaseBetting,
				HouseSide:    domain.SideNone,
				BettingStart: e.unix(),
				VaultRef:     VaultAccount(id),
				CreatedAt:    e.now().UTC(),
			}
			if err := s.Rounds.Create(ctx, round); err != nil {
				return err
			}

			state.Ring.Add(id)
			return s.State.Save(ctx, state)
		})
	})
	if err != nil {
		return domain.Round{}, err
	}

	e.logger.InfoContext(ctx, "round opened", slog.String("round_id", round.ID))
	e.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		Type:    "opened",
		RoundID: round.ID,
		At:      e.now().UTC(),
	})
	return round, nil
}

// PlaceBet stakes amount on side for owner. The first bet against an empty
// opposite side triggers the house auto-match; the bet fee goes to the house
// balance and the stake to the round vault.
func (e *Engine) PlaceBet(ctx context.Context, owner, roundID string, side uint8, amount uint64) (domain.UserBet, error) {
	if !domain.ValidSide(side) {
		return domain.UserBet{}, domain.ErrInvalidSide
	}
	if amount == 0 {
		return domain.UserBet{}, domain.ErrInvalidSize
	}
	if owner == "" {
		return domain.UserBet{}, domain.ErrUnauthorized
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "bets:"+owner, betRateLimit, time.Second)
		if err != nil {
			return domain.UserBet{}, fmt.Errorf("engine: rate limiter: %w", err)
		}
		if !allowed {
			return domain.UserBet{}, domain.ErrRateLimited
		}
	}

	var bet domain.UserBet
	err := e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		state, err := s.State.Get(ctx)
		if err != nil {
			return err
		}
		round, err := e.loadRound(ctx, s, roundID)
		if err != nil {
			return err
		}

		if round.Phase != domain.PhaseBetting || !round.BettingActive(e.unix(), state.Params.BettingPeriod) {
			return domain.ErrBettingInactive
		}

		if existing, ok := round.Ledger.Get(owner); ok {
			if state.Params.MaxUserBet > 0 && existing.Amount+amount > state.Params.MaxUserBet {
				return domain.ErrMaxUserBetExceeded
			}
		} else if state.Params.MaxUserBet > 0 && amount > state.Params.MaxUserBet {
			return domain.ErrMaxUserBetExceeded
		}

		// House-match a bet whose opposite side is still empty.
		opposite := 1 - side
		if round.Pools[opposite] == 0 {
			matched := domain.HouseMatchAmount(amount, state.Params.MaxHouseMatch)
			if matched > 0 {
				houseBal, err := s.Treasury.Balance(ctx, state.HouseAccount)
				if err != nil {
					return err
				}
				if matched > houseBal {
					return domain.ErrHouseBankrupt
				}
				if err := s.Treasury.Move(ctx, state.HouseAccount, round.VaultRef, matched); err != nil {
					return err
				}
				round.Pools[opposite] += matched
				round.HouseSide = opposite
				round.HouseAmount = matched
			}
		}

		if _, err := round.Ledger.Add(owner, amount, side); err != nil {
			return err
		}

		// Stake into the vault, fee to the house.
		if err := s.Treasury.Move(ctx, owner, round.VaultRef, amount); err != nil {
			return err
		}
		fee := amount * state.Params.BettingFeeBps / feeDivisor
		if fee > 0 {
			if err := s.Treasury.Move(ctx, owner, state.HouseAccount, fee); err != nil {
				return err
			}
		}
		round.Pools[side] += amount

		if err := s.Rounds.Save(ctx, round); err != nil {
			return err
		}
		if err := s.Bets.Replace(ctx, round.ID, round.Ledger.Entries); err != nil {
			return err
		}
		bet, _ = round.Ledger.Get(owner)
		return nil
	})
	if err != nil {
		return domain.UserBet{}, err
	}

	sideCopy := side
	e.publish(ctx, domain.ChannelBets, domain.RoundEvent{
		Type:    "bet_placed",
		RoundID: roundID,
		Owner:   owner,
		Side:    &sideCopy,
		Amount:  amount,
		At:      e.now().UTC(),
	})
	return bet, nil
}

// StartAnticipation closes the betting window, records the initial oracle
// prices, and tops the thin side up to the minimum payout multiplier.
func (e *Engine) StartAnticipation(ctx context.Context, signer, roundID string) error {
	err := e.withCrankLock(ctx, func() error {
		return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
			state, err := s.State.Get(ctx)
			if err != nil {
				return err
			}
			if err := state.ConfirmCrankAdmin(signer); err != nil {
				return err
			}
			round, err := s.Rounds.Get(ctx, roundID)
			if err != nil {
				return err
			}
			if round.Phase != domain.PhaseBetting {
				return domain.ErrBetAlreadySettled
			}
			now := e.unix()
			if round.BettingStart+state.Params.BettingPeriod > now {
				return domain.ErrBettingTooSoon
			}

			solPrice, err := e.oracle.Price(ctx, e.cfg.SolFeedID)
			if err != nil {
				return err
			}
			ethPrice, err := e.oracle.Price(ctx, e.cfg.EthFeedID)
			if err != nil {
				return err
			}
			round.InitialPrice[domain.SideSOL] = solPrice.Price
			round.InitialPrice[domain.SideETH] = ethPrice.Price
			round.AnticipationStart = now
			round.Phase = domain.PhaseAnticipating

			// Guarantee the configured minimum multiplier, bounded by the
			// house's per-round exposure cap and its balance.
			if state.Params.MaxHouseBetSize > round.HouseAmount {
				remaining := state.Params.MaxHouseBetSize - round.HouseAmount
				houseBal, err := s.Treasury.Balance(ctx, state.HouseAccount)
				if err != nil {
					return err
				}
				remaining = min(remaining, houseBal)
				topSide, topUp := domain.HouseTopUp(round.Pools, state.Params.MinMultiplier, remaining)
				if topUp > 0 {
					if err := s.Treasury.Move(ctx, state.HouseAccount, round.VaultRef, topUp); err != nil {
						return err
					}
					round.Pools[topSide] += topUp
					if round.HouseSide == domain.SideNone {
						round.HouseSide = topSide
					}
					round.HouseAmount += topUp
				}
			}

			if err := s.Rounds.Save(ctx, round); err != nil {
				return err
			}
			state.Ring.Modify(round.ID, domain.StatusAnticipating)
			return s.State.Save(ctx, state)
		})
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "anticipation started", slog.String("round_id", roundID))
	e.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		Type:    "anticipating",
		RoundID: roundID,
		At:      e.now().UTC(),
	})
	return nil
}

// ResolveRound reads the final oracle prices, determines the winner, and
// sweeps the house's share out of the vault. Winner payouts stay in the
// vault to be pulled via ClaimWin.
func (e *Engine) ResolveRound(ctx context.Context, signer, roundID string) (uint8, error) {
	var (
		winner uint8
		pools  [2]uint64
	)
	err := e.withCrankLock(ctx, func() error {
		return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
			state, err := s.State.Get(ctx)
			if err != nil {
				return err
			}
			if err := state.ConfirmCrankAdmin(signer); err != nil {
				return err
			}
			round, err := e.loadRound(ctx, s, roundID)
			if err != nil {
				return err
			}
			if round.Settled {
				return domain.ErrBetAlreadySettled
			}
			if round.Phase != domain.PhaseAnticipating {
				return domain.ErrAnticipationTooSoon
			}
			now := e.unix()
			if round.AnticipationStart+state.Params.AnticipationPeriod > now+marginOfError {
				return domain.ErrAnticipationTooSoon
			}

			solPrice, err := e.oracle.Price(ctx, e.cfg.SolFeedID)
			if err != nil {
				return err
			}
			ethPrice, err := e.oracle.Price(ctx, e.cfg.EthFeedID)
			if err != nil {
				return err
			}
			round.FinalPrice[domain.SideSOL] = solPrice.Price
			round.FinalPrice[domain.SideETH] = ethPrice.Price
			round.Settled = true
			round.AnticipationEnd = now
			round.Phase = domain.PhaseResolved
			winner = round.Winner()
			pools = round.Pools

			// The vault holds the full pool; whatever winners are not owed
			// belongs to the house, settled now.
			owed := round.OwedToWinners()
			vaultBal, err := s.Treasury.Balance(ctx, round.VaultRef)
			if err != nil {
				return err
			}
			if vaultBal > owed {
				if err := s.Treasury.Move(ctx, round.VaultRef, state.HouseAccount, vaultBal-owed); err != nil {
					return err
				}
			}

			if err := s.Rounds.Save(ctx, round); err != nil {
				return err
			}
			state.Ring.Modify(round.ID, domain.StatusResolved)
			return s.State.Save(ctx, state)
		})
	})
	if err != nil {
		return 0, err
	}

	e.logger.InfoContext(ctx, "round resolved",
		slog.String("round_id", roundID),
		slog.Int("winner", int(winner)),
	)
	winnerCopy := winner
	e.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		Type:    "resolved",
		RoundID: roundID,
		Winner:  &winnerCopy,
		Pools:   pools,
		At:      e.now().UTC(),
	})
	return winner, nil
}

// ClaimWin pays out the owner's stake in a settled round. Winners receive
// their pari-mutuel share, a draw refunds the stake, losers receive zero but
// are still marked claimed. Claiming twice is an idempotent success with no
// second transfer.
func (e *Engine) ClaimWin(ctx context.Context, owner, roundID string) (uint64, error) {
	var payout uint64
	err := e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		round, err := e.loadRound(ctx, s, roundID)
		if err != nil {
			return err
		}
		if !round.Settled {
			return domain.ErrBetNotSettled
		}
		bet, ok := round.Ledger.Get(owner)
		if !ok {
			return domain.ErrNoBetFound
		}
		if bet.Claimed {
			payout = 0
			return nil
		}

		payout = round.Payout(bet.Amount, bet.Side)
		if err := round.Ledger.MarkClaimed(owner); err != nil {
			return err
		}
		if payout > 0 {
			if err := s.Treasury.Move(ctx, round.VaultRef, owner, payout); err != nil {
				return err
			}
		}
		return s.Bets.Replace(ctx, round.ID, round.Ledger.Entries)
	})
	if err != nil {
		return 0, err
	}

	e.publish(ctx, domain.ChannelClaims, domain.RoundEvent{
		Type:    "claimed",
		RoundID: roundID,
		Owner:   owner,
		Amount:  payout,
		At:      e.now().UTC(),
	})
	return payout, nil
}

// CloseRound retires a round that has rotated out of the tracking window:
// every winning-side bet must be claimed, the residual vault balance is
// swept to the house, the round is archived, and its rows are deleted.
func (e *Engine) CloseRound(ctx context.Context, signer, roundID string) error {
	err := e.withCrankLock(ctx, func() error {
		return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
			state, err := s.State.Get(ctx)
			if err != nil {
				return err
			}
			if err := state.ConfirmCrankAdmin(signer); err != nil {
				return err
			}
			if state.Ring.Contains(roundID) {
				return domain.ErrRoundNotCloseable
			}
			round, err := e.loadRound(ctx, s, roundID)
			if err != nil {
				return err
			}
			if !round.Settled {
				return domain.ErrBetNotSettled
			}
			if !round.Ledger.AllClaimed(round.Winner()) {
				return domain.ErrBetsNotClaimed
			}

			// Truncating payouts can leave dust in the vault; it belongs to
			// the house.
			residual, err := s.Treasury.Balance(ctx, round.VaultRef)
			if err != nil {
				return err
			}
			if residual > 0 {
				if err := s.Treasury.Move(ctx, round.VaultRef, state.HouseAccount, residual); err != nil {
					return err
				}
			}

			if e.archive != nil {
				if err := e.archive.ArchiveRound(ctx, round); err != nil {
					return fmt.Errorf("engine: archive round %s: %w", round.ID, err)
				}
			}

			if err := s.Bets.DeleteByRound(ctx, round.ID); err != nil {
				return err
			}
			if err := s.Rounds.Delete(ctx, round.ID); err != nil {
				return err
			}
			if state.Ring.ToClose == roundID {
				state.Ring.ToClose = ""
			}
			return s.State.Save(ctx, state)
		})
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "round closed", slog.String("round_id", roundID))
	e.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		Type:    "closed",
		RoundID: roundID,
		At:      e.now().UTC(),
	})
	return nil
}

// ChangeConfig overwrites the market parameters wholesale, including the
// crank admin. Only the market owner may call it.
func (e *Engine) ChangeConfig(ctx context.Context, signer string, params domain.MarketParams) error {
	if err := validateParams(params); err != nil {
		return err
	}
	return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		state, err := s.State.Get(ctx)
		if err != nil {
			return err
		}
		if err := state.ConfirmOwner(signer); err != nil {
			return err
		}
		state.Params = params
		return s.State.Save(ctx, state)
	})
}

func validateParams(p domain.MarketParams) error {
	switch {
	case p.BettingFeeBps >= feeDivisor:
		return fmt.Errorf("engine: betting fee %d bps out of range: %w", p.BettingFeeBps, domain.ErrInvalidSize)
	case p.BettingPeriod == 0 || p.AnticipationPeriod == 0:
		return fmt.Errorf("engine: zero phase duration: %w", domain.ErrInvalidSize)
	case p.CrankAdmin == "":
		return fmt.Errorf("engine: empty crank admin: %w", domain.ErrInvalidAdmin)
	}
	return nil
}

// WithdrawHouseFunds moves amount from the house balance to receiver. Only
// the market owner may call it.
func (e *Engine) WithdrawHouseFunds(ctx context.Context, signer, receiver string, amount uint64) error {
	return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		state, err := s.State.Get(ctx)
		if err != nil {
			return err
		}
		if err := state.ConfirmOwner(signer); err != nil {
			return err
		}
		return s.Treasury.Move(ctx, state.HouseAccount, receiver, amount)
	})
}

// Deposit credits an owner's custodial balance. The actual value transfer is
// settled off-system; this records it.
func (e *Engine) Deposit(ctx context.Context, signer, owner string, amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidSize
	}
	return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		state, err := s.State.Get(ctx)
		if err != nil {
			return err
		}
		if err := state.ConfirmOwner(signer); err != nil {
			return err
		}
		return s.Treasury.Credit(ctx, owner, amount)
	})
}

// CleanRoundRecords zeroes the tracking window and the pending-closure
// pointer. Recovery hatch for a wedged ring.
func (e *Engine) CleanRoundRecords(ctx context.Context, signer string) error {
	return e.uow.Do(ctx, func(ctx context.Context, s domain.StoreSet) error {
		state, err := s.State.Get(ctx)
		if err != nil {
			return err
		}
		if err := state.ConfirmCrankAdmin(signer); err != nil {
			return err
		}
		state.Ring.Reset()
		return s.State.Save(ctx, state)
	})
}

func (e *Engine) publish(ctx context.Context, channel string, ev domain.RoundEvent) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, ev); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
