package postgres

import (
	"context"
	"fmt"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// TreasuryStore implements domain.Treasury on the balances table. Debits are
// guarded in SQL so a balance can never go negative, whatever the caller
// checked beforehand.
type TreasuryStore struct {
	q Querier
}

// NewTreasuryStore creates a TreasuryStore on the given querier.
func NewTreasuryStore(q Querier) *TreasuryStore {
	return &TreasuryStore{q: q}
}

// Move transfers amount from one account to another. It fails with
// domain.ErrInsufficientBalance when the source cannot cover the amount.
func (s *TreasuryStore) Move(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE balances SET balance = balance - $2, updated_at = NOW()
		WHERE account = $1 AND balance >= $2`,
		from, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}

	if err := s.Credit(ctx, to, amount); err != nil {
		return err
	}
	return nil
}

// Balance returns the current balance of an account. Unknown accounts read
// as zero.
func (s *TreasuryStore) Balance(ctx context.Context, account string) (uint64, error) {
	var balance uint64
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(
			(SELECT balance FROM balances WHERE account = $1), 0)`,
		account,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return balance, nil
}

// Credit adds amount to an account, creating it when absent.
func (s *TreasuryStore) Credit(ctx context.Context, account string, amount uint64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO balances (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET
			balance = balances.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		account, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account, err)
	}
	return nil
}
