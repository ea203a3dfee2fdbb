package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// MarketStateStore persists the market singleton row. The round ring is kept
// as jsonb since it is always read and written whole.
type MarketStateStore struct {
	q Querier
}

// NewMarketStateStore creates a MarketStateStore on the given querier.
func NewMarketStateStore(q Querier) *MarketStateStore {
	return &MarketStateStore{q: q}
}

// Get loads the singleton and locks it for the remainder of the transaction,
// serializing concurrent settlement operations on the shared state.
func (s *MarketStateStore) Get(ctx context.Context) (domain.MarketState, error) {
	const query = `
		SELECT owner_identity, house_account,
			betting_fee_bps, max_house_match, max_house_bet_size,
			min_multiplier, betting_period, anticipation_period,
			max_user_bet, crank_admin, paused, ring
		FROM market_state WHERE id = 1
		FOR UPDATE`

	var (
		state    domain.MarketState
		ringJSON []byte
	)
	err := s.q.QueryRow(ctx, query).Scan(
		&state.Owner, &state.HouseAccount,
		&state.Params.BettingFeeBps, &state.Params.MaxHouseMatch,
		&state.Params.MaxHouseBetSize, &state.Params.MinMultiplier,
		&state.Params.BettingPeriod, &state.Params.AnticipationPeriod,
		&state.Params.MaxUserBet, &state.Params.CrankAdmin,
		&state.Params.Paused, &ringJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketState{}, domain.ErrNotFound
		}
		return domain.MarketState{}, fmt.Errorf("postgres: get market state: %w", err)
	}

	if len(ringJSON) > 0 {
		if err := json.Unmarshal(ringJSON, &state.Ring); err != nil {
			return domain.MarketState{}, fmt.Errorf("postgres: decode round ring: %w", err)
		}
	}
	return state, nil
}

// Init writes the singleton row. It fails when the market already exists.
func (s *MarketStateStore) Init(ctx context.Context, state domain.MarketState) error {
	ringJSON, err := json.Marshal(state.Ring)
	if err != nil {
		return fmt.Errorf("postgres: encode round ring: %w", err)
	}

	const query = `
		INSERT INTO market_state (
			id, owner_identity, house_account,
			betting_fee_bps, max_house_match, max_house_bet_size,
			min_multiplier, betting_period, anticipation_period,
			max_user_bet, crank_admin, paused, ring, updated_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
		)`

	_, err = s.q.Exec(ctx, query,
		state.Owner, state.HouseAccount,
		state.Params.BettingFeeBps, state.Params.MaxHouseMatch,
		state.Params.MaxHouseBetSize, state.Params.MinMultiplier,
		state.Params.BettingPeriod, state.Params.AnticipationPeriod,
		state.Params.MaxUserBet, state.Params.CrankAdmin,
		state.Params.Paused, ringJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: init market state: %w", err)
	}
	return nil
}

// Save overwrites the singleton row.
func (s *MarketStateStore) Save(ctx context.Context, state domain.MarketState) error {
	ringJSON, err := json.Marshal(state.Ring)
	if err != nil {
		return fmt.Errorf("postgres: encode round ring: %w", err)
	}

	const query = `
		UPDATE market_state SET
			owner_identity      = $1,
			house_account       = $2,
			betting_fee_bps     = $3,
			max_house_match     = $4,
			max_house_bet_size  = $5,
			min_multiplier      = $6,
			betting_period      = $7,
			anticipation_period = $8,
			max_user_bet        = $9,
			crank_admin         = $10,
			paused              = $11,
			ring                = $12,
			updated_at          = NOW()
		WHERE id = 1`

	tag, err := s.q.Exec(ctx, query,
		state.Owner, state.HouseAccount,
		state.Params.BettingFeeBps, state.Params.MaxHouseMatch,
		state.Params.MaxHouseBetSize, state.Params.MinMultiplier,
		state.Params.BettingPeriod, state.Params.AnticipationPeriod,
		state.Params.MaxUserBet, state.Params.CrankAdmin,
		state.Params.Paused, ringJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: save market state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
