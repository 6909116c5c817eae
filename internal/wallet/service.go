package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/ledger"
)

// Service exposes wallet history and balances. Its only write is the admin
// deposit, which goes through the settlement engine.
type Service struct {
	store  Store
	engine *ledger.Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(store Store, engine *ledger.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Flow returns userID's wallet history, newest first. A missing order or
// counterpart yields a nil Counterpart rather than an error.
func (s *Service) Flow(ctx context.Context, userID int64) ([]FlowItem, error) {
	rows, err := s.store.FlowRows(ctx, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	items := make([]FlowItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, project(row))
	}
	return items, nil
}

func project(row FlowRow) FlowItem {
	item := FlowItem{
		ID:        row.Entry.ID,
		Kind:      row.Entry.Kind,
		Amount:    row.Entry.Amount,
		OrderID:   row.Entry.OrderID,
		CreatedAt: row.Entry.CreatedAt,
	}
	if row.OrderNo != nil {
		item.OrderNo = *row.OrderNo
	}

	switch {
	case row.Entry.OrderID == nil:
		item.Counterpart = &Counterpart{Nickname: SystemNickname, System: true}
	case row.CounterpartID != nil && row.CounterpartNickname != nil:
		cp := &Counterpart{ID: *row.CounterpartID, Nickname: *row.CounterpartNickname}
		if row.CounterpartAvatar != nil {
			cp.Avatar = *row.CounterpartAvatar
		}
		item.Counterpart = cp
	}
	return item
}

// Balance returns the current balance of userID.
func (s *Service) Balance(ctx context.Context, userID int64) (Balance, error) {
	amount, err := s.store.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return Balance{}, apperr.E(apperr.KindNotFound, "account not found")
		}
		return Balance{}, apperr.Classify(err)
	}
	return Balance{UserID: userID, Amount: amount, AsOf: s.now()}, nil
}

// Deposit credits userID's account. Admin only.
func (s *Service) Deposit(ctx context.Context, actor auth.Principal, userID int64, amount decimal.Decimal) (Balance, error) {
	if !actor.IsAdmin() {
		return Balance{}, apperr.E(apperr.KindForbidden, "admin only")
	}
	var acc ledger.Account
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Accounts) error {
		var err error
		acc, err = s.engine.Deposit(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return Balance{}, apperr.Classify(err)
	}
	s.logger.Info("wallet deposit", slog.Int64("user_id", userID), slog.Int64("admin_id", actor.ID), slog.String("amount", amount.StringFixed(2)))
	return Balance{UserID: userID, Amount: acc.Balance, AsOf: s.now()}, nil
}
