package postgres

import (
	"context"
	"fmt"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// UnitOfWork implements domain.UnitOfWork: every Do call runs the operation
// inside one transaction, binding transaction-scoped stores, so a settlement
// operation either commits all of its writes or none of them.
type UnitOfWork struct {
	client *Client
}

// NewUnitOfWork creates a UnitOfWork on the given client.
func NewUnitOfWork(client *Client) *UnitOfWork {
	return &UnitOfWork{client: client}
}

// Do begins a transaction, runs fn with stores bound to it, and commits when
// fn returns nil. Any error from fn rolls the transaction back and is
// returned unchanged so sentinel checks still work.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s domain.StoreSet) error) error {
	tx, err := u.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	set := domain.StoreSet{
		State:    NewMarketStateStore(tx),
		Rounds:   NewRoundStore(tx),
		Bets:     NewBetStore(tx),
		Treasury: NewTreasuryStore(tx),
	}
	if err := fn(ctx, set); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}
