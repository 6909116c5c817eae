package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAccounts is the Accounts view of an open pgx transaction.
type PostgresAccounts struct {
	tx pgx.Tx
}

// NewPostgresAccounts wraps tx. The caller owns commit/rollback.
func NewPostgresAccounts(tx pgx.Tx) *PostgresAccounts {
	return &PostgresAccounts{tx: tx}
}

// LockAccount reads the balance row with FOR UPDATE.
func (a *PostgresAccounts) LockAccount(ctx context.Context, userID int64) (Account, error) {
	const query = `SELECT balance::text FROM accounts WHERE user_id = $1 FOR UPDATE`
	var raw string
	if err := a.tx.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance: %w", err)
	}
	return Account{UserID: userID, Balance: balance}, nil
}

// SetBalance overwrites the balance of a locked row.
func (a *PostgresAccounts) SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	cmd, err := a.tx.Exec(ctx, `UPDATE accounts SET balance = $1::numeric, updated_at = now() WHERE user_id = $2`, balance.String(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendEntry inserts a wallet entry and returns it with its id.
func (a *PostgresAccounts) AppendEntry(ctx context.Context, entry Entry) (Entry, error) {
	const query = `
        INSERT INTO wallet_entries (user_id, kind, amount, order_id, created_at)
        VALUES ($1, $2, $3::numeric, $4, $5)
        RETURNING id`
	if err := a.tx.QueryRow(ctx, query, entry.UserID, entry.Kind, entry.Amount.String(), entry.OrderID, entry.CreatedAt).Scan(&entry.ID); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Balance returns the current balance of userID outside any lock.
func Balance(ctx context.Context, q Querier, userID int64) (decimal.Decimal, error) {
	var raw string
	if err := q.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE user_id = $1`, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}
