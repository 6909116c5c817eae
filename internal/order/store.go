package order

import (
	"context"
	"errors"

	"github.com/playmate/playmate/internal/ledger"
)

// ErrNotFound is returned by stores when no order row matches.
var ErrNotFound = errors.New("order not found")

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// WithinTx runs fn in one store transaction. fn's error rolls back every
	// write made through tx, balance changes included.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view used by state transitions.
type Tx interface {
	// LockOrder reads the order row and holds its lock until the
	// transaction ends.
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ledger.Accounts
}
