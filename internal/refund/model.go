package refund

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/order"
)

// Status is the lifecycle state of a refund request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Active reports whether the status blocks another request for the same order.
func (s Status) Active() bool { return s == StatusPending || s == StatusApproved }

func (s Status) valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Refund is a client's request to reverse a completed order's payment.
// Amount is the order amount at the time of the request.
type Refund struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ApplicantID int64           `json:"applicant_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	Status      Status          `json:"status"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// View is a refund joined with the order and party details used by listings.
type View struct {
	Refund
	OrderNo           string `json:"order_no"`
	CompanionID       int64  `json:"companion_id"`
	ApplicantNickname string `json:"applicant_nickname"`
	CompanionNickname string `json:"companion_nickname"`
}

func (r Refund) MarshalJSON() ([]byte, error) {
	type plain Refund
	return json.Marshal(struct {
		plain
		Amount ledger.JSONAmount `json:"amount"`
	}{plain(r), ledger.JSONAmount(r.Amount)})
}

// MarshalJSON flattens the refund and its join columns into one object.
func (v View) MarshalJSON() ([]byte, error) {
	type plain Refund
	return json.Marshal(struct {
		plain
		Amount            ledger.JSONAmount `json:"amount"`
		OrderNo           string            `json:"order_no"`
		CompanionID       int64             `json:"companion_id"`
		ApplicantNickname string            `json:"applicant_nickname"`
		CompanionNickname string            `json:"companion_nickname"`
	}{plain(v.Refund), ledger.JSONAmount(v.Amount), v.OrderNo, v.CompanionID, v.ApplicantNickname, v.CompanionNickname})
}

// ApplyInput carries a refund application.
type ApplyInput struct {
	OrderID     int64
	ApplicantID int64
	Reason      string
}

// Filter narrows refund listings. Zero values match everything.
type Filter struct {
	ApplicantID int64
	Status      Status
	// Keyword matches order number, applicant nickname or companion nickname.
	Keyword string
}

// ErrNotFound is returned by stores when no refund row matches.
var ErrNotFound = errors.New("refund not found")

// Store persists refund requests.
type Store interface {
	List(ctx context.Context, f Filter) ([]View, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view used by refund transitions.
type Tx interface {
	LockOrder(ctx context.Context, id int64) (order.Order, error)
	LockRefund(ctx context.Context, id int64) (Refund, error)
	// HasActiveRefund reports whether orderID has a pending or approved refund.
	HasActiveRefund(ctx context.Context, orderID int64) (bool, error)
	CreateRefund(ctx context.Context, r Refund) (Refund, error)
	UpdateRefund(ctx context.Context, r Refund) error
	ledger.Accounts
}
