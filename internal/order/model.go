package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/ledger"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Order is a booking of a companion by a client for a game session.
type Order struct {
	ID            int64           `json:"id"`
	OrderNo       string          `json:"order_no"`
	ClientID      int64           `json:"client_id"`
	CompanionID   int64           `json:"companion_id"`
	GameID        int64           `json:"game_id"`
	Amount        decimal.Decimal `json:"amount"`
	DurationHours decimal.Decimal `json:"duration_hours"`
	Remark        string          `json:"remark"`
	Status        Status          `json:"status"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Rating        *int            `json:"rating,omitempty"`
	Review        *string         `json:"review,omitempty"`
	EvaluatedAt   *time.Time      `json:"evaluated_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MarshalJSON renders money and hours with two decimals.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Amount        ledger.JSONAmount `json:"amount"`
		DurationHours ledger.JSONAmount `json:"duration_hours"`
	}{plain(o), ledger.JSONAmount(o.Amount), ledger.JSONAmount(o.DurationHours)})
}

// Rated reports whether the client already evaluated the order.
func (o Order) Rated() bool { return o.Rating != nil }

// CreateInput carries the fields a client supplies when booking.
type CreateInput struct {
	ClientID      int64
	CompanionID   int64
	GameID        int64
	Amount        decimal.Decimal
	DurationHours decimal.Decimal
	Remark        string
}

// Filter narrows order listings. Zero values match everything.
type Filter struct {
	ClientID    int64
	CompanionID int64
	// Keyword matches a substring of the order number.
	Keyword string
}
