package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound occurs when no balance row exists for a user id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds occurs when a debit would take a balance below zero
	// and overdraft has been disabled.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Entry kinds written alongside every balance change.
const (
	EntryDeposit     = "deposit"
	EntryPayment     = "payment"
	EntryIncome      = "income"
	EntryRefund      = "refund"
	EntryRefundDebit = "refund_debit"
)

// Account is the balance row of a single user.
type Account struct {
	UserID  int64
	Balance decimal.Decimal
}

// Entry is one signed movement on a user's balance. OrderID is nil for
// movements not linked to an order (deposits).
type Entry struct {
	ID        int64
	UserID    int64
	Kind      string
	Amount    decimal.Decimal
	OrderID   *int64
	CreatedAt time.Time
}

// Accounts is the view of the balance store available inside an open
// transaction. LockAccount must hold the row exclusively until the
// surrounding transaction ends.
type Accounts interface {
	LockAccount(ctx context.Context, userID int64) (Account, error)
	SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error
	AppendEntry(ctx context.Context, entry Entry) (Entry, error)
}
