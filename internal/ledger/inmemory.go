package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// InMemory is a map-backed Accounts implementation. It does no locking of its
// own: callers serialize access and use Clone to stage a transaction (see
// storage.Memory).
type InMemory struct {
	balances    map[int64]decimal.Decimal
	entries     []Entry
	nextEntryID int64
}

// NewInMemory creates an empty in-memory balance book.
func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[int64]decimal.Decimal)}
}

// Open creates a zero balance for userID if none exists.
func (l *InMemory) Open(userID int64) {
	if _, ok := l.balances[userID]; !ok {
		l.balances[userID] = decimal.Zero
	}
}

// Drop removes the account row, leaving its entries behind.
func (l *InMemory) Drop(userID int64) {
	delete(l.balances, userID)
}

func (l *InMemory) LockAccount(_ context.Context, userID int64) (Account, error) {
	balance, ok := l.balances[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return Account{UserID: userID, Balance: balance}, nil
}

func (l *InMemory) SetBalance(_ context.Context, userID int64, balance decimal.Decimal) error {
	if _, ok := l.balances[userID]; !ok {
		return ErrAccountNotFound
	}
	l.balances[userID] = balance
	return nil
}

func (l *InMemory) AppendEntry(_ context.Context, entry Entry) (Entry, error) {
	l.nextEntryID++
	entry.ID = l.nextEntryID
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Balance returns the current balance of userID.
func (l *InMemory) Balance(userID int64) (decimal.Decimal, error) {
	balance, ok := l.balances[userID]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	return balance, nil
}

// Entries returns the entries of userID, newest first.
func (l *InMemory) Entries(userID int64) []Entry {
	out := make([]Entry, 0)
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Clone returns a deep copy usable as a transaction workspace.
func (l *InMemory) Clone() *InMemory {
	c := &InMemory{
		balances:    make(map[int64]decimal.Decimal, len(l.balances)),
		entries:     make([]Entry, len(l.entries)),
		nextEntryID: l.nextEntryID,
	}
	for k, v := range l.balances {
		c.balances[k] = v
	}
	copy(c.entries, l.entries)
	return c
}
