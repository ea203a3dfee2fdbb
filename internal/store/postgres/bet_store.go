package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// BetStore persists per-round ledger entries. The position column preserves
// the ledger's insertion order across reloads.
type BetStore struct {
	q Querier
}

// NewBetStore creates a BetStore on the given querier.
func NewBetStore(q Querier) *BetStore {
	return &BetStore{q: q}
}

// List returns the ledger entries of a round in insertion order.
func (s *BetStore) List(ctx context.Context, roundID string) ([]domain.UserBet, error) {
	const query = `
		SELECT owner_identity, amount, side, claimed
		FROM bets WHERE round_id = $1
		ORDER BY position`

	rows, err := s.q.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for round %s: %w", roundID, err)
	}
	defer rows.Close()

	var entries []domain.UserBet
	for rows.Next() {
		var (
			b    domain.UserBet
			side int16
		)
		if err := rows.Scan(&b.Owner, &b.Amount, &side, &b.Claimed); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.Side = uint8(side)
		entries = append(entries, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return entries, nil
}

// Replace rewrites the round's ledger wholesale. The engine mutates the
// in-memory ledger and persists the result, so a delete-and-insert keeps the
// table an exact mirror.
func (s *BetStore) Replace(ctx context.Context, roundID string, entries []domain.UserBet) error {
	if _, err := s.q.Exec(ctx,
		`DELETE FROM bets WHERE round_id = $1`, roundID); err != nil {
		return fmt.Errorf("postgres: clear bets for round %s: %w", roundID, err)
	}
	if len(entries) == 0 {
		return nil
	}

	const query = `
		INSERT INTO bets (round_id, owner_identity, position, amount, side, claimed)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for i, b := range entries {
		batch.Queue(query, roundID, b.Owner, i, b.Amount, int16(b.Side), b.Claimed)
	}

	br := s.q.SendBatch(ctx, batch)
	defer br.Close()

	for i := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert bet %d for round %s: %w", i, roundID, err)
		}
	}
	return nil
}

// DeleteByRound removes every bet of a round.
func (s *BetStore) DeleteByRound(ctx context.Context, roundID string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM bets WHERE round_id = $1`, roundID)
	if err != nil {
		return fmt.Errorf("postgres: delete bets for round %s: %w", roundID, err)
	}
	return nil
}
