package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/notification"
)

// Service drives the order state machine:
//
//	pending -> accepted -> completed
//	pending -> cancelled
//
// Completion moves the order amount from client to companion in the same
// store transaction as the status flip.
type Service struct {
	store    Store
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires an order service.
func NewService(store Store, engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create books a companion. It has no balance effect.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	if in.ClientID == in.CompanionID {
		return Order{}, apperr.E(apperr.KindValidation, "cannot order yourself")
	}
	if !in.DurationHours.IsPositive() {
		return Order{}, apperr.E(apperr.KindValidation, "duration must be greater than 0")
	}
	if err := ledger.ValidateAmount(in.Amount); err != nil {
		return Order{}, err
	}

	o, err := s.store.Create(ctx, Order{
		OrderNo:       newOrderNo(),
		ClientID:      in.ClientID,
		CompanionID:   in.CompanionID,
		GameID:        in.GameID,
		Amount:        in.Amount,
		DurationHours: in.DurationHours,
		Remark:        strings.TrimSpace(in.Remark),
		Status:        StatusPending,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return Order{}, apperr.Classify(err)
	}

	s.logger.Info("order created", slog.Int64("order_id", o.ID), slog.String("order_no", o.OrderNo), slog.Int64("user_id", o.ClientID))
	s.notify(ctx, notification.ToUser(notification.KindOrderCreated, o.CompanionID, "new order "+o.OrderNo))
	return o, nil
}

// Accept moves a pending order addressed to companionID to accepted.
func (s *Service) Accept(ctx context.Context, orderID, companionID int64) (Order, error) {
	o, err := s.transition(ctx, orderID, func(o Order) bool { return o.CompanionID == companionID },
		func(ctx context.Context, tx Tx, o *Order) error {
			if o.Status != StatusPending {
				return apperr.E(apperr.KindInvalidState, "order is not pending")
			}
			o.Status = StatusAccepted
			return nil
		})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order accepted", slog.Int64("order_id", o.ID), slog.Int64("user_id", companionID))
	s.notify(ctx, notification.ToUser(notification.KindOrderAccepted, o.ClientID, "order "+o.OrderNo+" accepted"))
	return o, nil
}

// Complete marks an accepted order completed and pays the companion.
func (s *Service) Complete(ctx context.Context, orderID, clientID int64) (Order, error) {
	o, err := s.transition(ctx, orderID, func(o Order) bool { return o.ClientID == clientID },
		func(ctx context.Context, tx Tx, o *Order) error {
			if o.Status != StatusAccepted {
				return apperr.E(apperr.KindInvalidState, "order is not in progress")
			}
			now := s.now()
			o.Status = StatusCompleted
			o.CompletedAt = &now
			_, err := s.engine.Transfer(ctx, tx, ledger.Posting{
				FromID:  o.ClientID,
				ToID:    o.CompanionID,
				Amount:  o.Amount,
				OrderID: o.ID,
			})
			return err
		})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order completed", slog.Int64("order_id", o.ID), slog.Int64("user_id", clientID), slog.String("amount", o.Amount.StringFixed(2)))
	s.notify(ctx, notification.ToUser(notification.KindOrderCompleted, o.CompanionID, "order "+o.OrderNo+" completed"))
	return o, nil
}

// Cancel aborts a pending order on behalf of either party.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64) (Order, error) {
	o, err := s.transition(ctx, orderID, func(o Order) bool { return o.ClientID == actorID || o.CompanionID == actorID },
		func(ctx context.Context, tx Tx, o *Order) error {
			if o.Status != StatusPending {
				return apperr.E(apperr.KindInvalidState, "only pending orders can be cancelled")
			}
			o.Status = StatusCancelled
			return nil
		})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order cancelled", slog.Int64("order_id", o.ID), slog.Int64("user_id", actorID))
	other := o.CompanionID
	if actorID == o.CompanionID {
		other = o.ClientID
	}
	s.notify(ctx, notification.ToUser(notification.KindOrderCancelled, other, "order "+o.OrderNo+" cancelled"))
	return o, nil
}

// Evaluate records the client's rating for a completed order, once.
func (s *Service) Evaluate(ctx context.Context, orderID, clientID int64, rating int, review string) (Order, error) {
	if rating < 1 || rating > 5 {
		return Order{}, apperr.E(apperr.KindValidation, "rating must be between 1 and 5")
	}
	o, err := s.transition(ctx, orderID, func(o Order) bool { return o.ClientID == clientID },
		func(ctx context.Context, tx Tx, o *Order) error {
			if o.Status != StatusCompleted {
				return apperr.E(apperr.KindInvalidState, "only completed orders can be evaluated")
			}
			if o.Rated() {
				return apperr.E(apperr.KindInvalidState, "order already evaluated")
			}
			now := s.now()
			r := rating
			o.Rating = &r
			if trimmed := strings.TrimSpace(review); trimmed != "" {
				o.Review = &trimmed
			}
			o.EvaluatedAt = &now
			return nil
		})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order evaluated", slog.Int64("order_id", o.ID), slog.Int64("user_id", clientID), slog.Int("rating", rating))
	s.notify(ctx, notification.ToUser(notification.KindOrderEvaluated, o.CompanionID, fmt.Sprintf("order %s rated %d", o.OrderNo, rating)))
	return o, nil
}

// Get returns an order visible to userID.
func (s *Service) Get(ctx context.Context, orderID, userID int64) (Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, apperr.E(apperr.KindNotFound, "order not found")
		}
		return Order{}, apperr.Classify(err)
	}
	if o.ClientID != userID && o.CompanionID != userID {
		return Order{}, apperr.E(apperr.KindNotFound, "order not found")
	}
	return o, nil
}

// ListMine returns orders where userID is the client, or the companion when
// asCompanion is set, newest first.
func (s *Service) ListMine(ctx context.Context, userID int64, asCompanion bool) ([]Order, error) {
	f := Filter{ClientID: userID}
	if asCompanion {
		f = Filter{CompanionID: userID}
	}
	orders, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return orders, nil
}

// ListAll returns every order matching keyword. Admin only.
func (s *Service) ListAll(ctx context.Context, actor auth.Principal, keyword string) ([]Order, error) {
	if !actor.IsAdmin() {
		return nil, apperr.E(apperr.KindForbidden, "admin only")
	}
	orders, err := s.store.List(ctx, Filter{Keyword: strings.TrimSpace(keyword)})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return orders, nil
}

// transition locks the order, checks ownership, lets mutate change it and
// persists the result, all in one store transaction.
func (s *Service) transition(ctx context.Context, orderID int64, owns func(Order) bool, mutate func(context.Context, Tx, *Order) error) (Order, error) {
	var out Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperr.E(apperr.KindNotFound, "order not found")
			}
			return err
		}
		if !owns(o) {
			return apperr.E(apperr.KindNotFound, "order not found")
		}
		if err := mutate(ctx, tx, &o); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, apperr.Classify(err)
	}
	return out, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func newOrderNo() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
