package wallet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/ledger"
)

// SystemNickname labels entries that are not linked to an order.
const SystemNickname = "system"

// Counterpart is the other party shown next to a wallet entry.
type Counterpart struct {
	ID       int64  `json:"id,omitempty"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	System   bool   `json:"system,omitempty"`
}

// FlowItem is one row of a user's wallet history.
type FlowItem struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	OrderID     *int64          `json:"order_id,omitempty"`
	OrderNo     string          `json:"order_no,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Counterpart *Counterpart    `json:"counterpart"`
}

// Balance is a point-in-time view of one account.
type Balance struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"balance"`
	AsOf   time.Time       `json:"as_of"`
}

func (f FlowItem) MarshalJSON() ([]byte, error) {
	type plain FlowItem
	return json.Marshal(struct {
		plain
		Amount ledger.JSONAmount `json:"amount"`
	}{plain(f), ledger.JSONAmount(f.Amount)})
}

func (b Balance) MarshalJSON() ([]byte, error) {
	type plain Balance
	return json.Marshal(struct {
		plain
		Amount ledger.JSONAmount `json:"balance"`
	}{plain(b), ledger.JSONAmount(b.Amount)})
}

// FlowRow is an entry joined with its order and the order's other party.
// Join columns are nil when the order or the counterpart user is gone.
type FlowRow struct {
	Entry               ledger.Entry
	OrderNo             *string
	CounterpartID       *int64
	CounterpartNickname *string
	CounterpartAvatar   *string
}

// Store is the read side of the ledger plus a transaction hook for deposits.
type Store interface {
	// FlowRows returns userID's entries newest first, ties broken by id desc.
	FlowRows(ctx context.Context, userID int64) ([]FlowRow, error)
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, acc ledger.Accounts) error) error
}
