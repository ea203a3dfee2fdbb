package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// RoundStore persists rounds. The per-round ledger lives in the bets table
// and is composed back onto the round by the caller.
type RoundStore struct {
	q Querier
}

// NewRoundStore creates a RoundStore on the given querier.
func NewRoundStore(q Querier) *RoundStore {
	return &RoundStore{q: q}
}

const roundCols = `id, phase,
	initial_price_sol, initial_price_eth,
	final_price_sol, final_price_eth,
	pool_sol, pool_eth,
	house_side, house_amount,
	betting_start, anticipation_start, anticipation_end,
	settled, vault_ref, created_at`

// Create inserts a new round row.
func (s *RoundStore) Create(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (` + roundCols + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16
		)`

	_, err := s.q.Exec(ctx, query,
		r.ID, string(r.Phase),
		r.InitialPrice[domain.SideSOL], r.InitialPrice[domain.SideETH],
		r.FinalPrice[domain.SideSOL], r.FinalPrice[domain.SideETH],
		r.Pools[domain.SideSOL], r.Pools[domain.SideETH],
		int16(r.HouseSide), r.HouseAmount,
		r.BettingStart, r.AnticipationStart, r.AnticipationEnd,
		r.Settled, r.VaultRef, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create round %s: %w", r.ID, err)
	}
	return nil
}

// Get retrieves a round by ID, without its ledger, and locks the row for the
// rest of the transaction.
func (s *RoundStore) Get(ctx context.Context, id string) (domain.Round, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE id = $1 FOR UPDATE`, id)

	var (
		r         domain.Round
		phase     string
		houseSide int16
	)
	err := row.Scan(
		&r.ID, &phase,
		&r.InitialPrice[domain.SideSOL], &r.InitialPrice[domain.SideETH],
		&r.FinalPrice[domain.SideSOL], &r.FinalPrice[domain.SideETH],
		&r.Pools[domain.SideSOL], &r.Pools[domain.SideETH],
		&houseSide, &r.HouseAmount,
		&r.BettingStart, &r.AnticipationStart, &r.AnticipationEnd,
		&r.Settled, &r.VaultRef, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	r.Phase = domain.RoundPhase(phase)
	r.HouseSide = uint8(houseSide)
	return r, nil
}

// Save overwrites a round row.
func (s *RoundStore) Save(ctx context.Context, r domain.Round) error {
	const query = `
		UPDATE rounds SET
			phase              = $2,
			initial_price_sol  = $3,
			initial_price_eth  = $4,
			final_price_sol    = $5,
			final_price_eth    = $6,
			pool_sol           = $7,
			pool_eth           = $8,
			house_side         = $9,
			house_amount       = $10,
			betting_start      = $11,
			anticipation_start = $12,
			anticipation_end   = $13,
			settled            = $14,
			vault_ref          = $15
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		r.ID, string(r.Phase),
		r.InitialPrice[domain.SideSOL], r.InitialPrice[domain.SideETH],
		r.FinalPrice[domain.SideSOL], r.FinalPrice[domain.SideETH],
		r.Pools[domain.SideSOL], r.Pools[domain.SideETH],
		int16(r.HouseSide), r.HouseAmount,
		r.BettingStart, r.AnticipationStart, r.AnticipationEnd,
		r.Settled, r.VaultRef,
	)
	if err != nil {
		return fmt.Errorf("postgres: save round %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a round row. Its bets go with it via the foreign key.
func (s *RoundStore) Delete(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM rounds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete round %s: %w", id, err)
	}
	return nil
}
