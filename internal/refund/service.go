package refund

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/notification"
	"github.com/playmate/playmate/internal/order"
)

// ErrActiveRefund is the cause of the Conflict returned when an order
// already has a pending or approved refund.
var ErrActiveRefund = errors.New("refund already requested for this order")

// Service handles refund applications and their administrative review.
type Service struct {
	store    Store
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the refund service. A nil notifier disables notifications.
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

// Apply opens a refund request for a completed order owned by the applicant.
// The order row stays locked until the request is inserted, so two
// concurrent applications for one order cannot both pass the active check.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (Refund, error) {
	var out Refund
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return apperr.E(apperr.KindNotFound, "order not found")
			}
			return err
		}
		if o.ClientID != in.ApplicantID {
			return apperr.E(apperr.KindNotFound, "order not found")
		}
		if o.Status != order.StatusCompleted {
			return apperr.E(apperr.KindInvalidState, "only completed orders can be refunded")
		}
		active, err := tx.HasActiveRefund(ctx, o.ID)
		if err != nil {
			return err
		}
		if active {
			return apperr.Wrap(apperr.KindConflict, ErrActiveRefund.Error(), ErrActiveRefund)
		}

		out, err = tx.CreateRefund(ctx, Refund{
			OrderID:     o.ID,
			ApplicantID: in.ApplicantID,
			Amount:      o.Amount,
			Reason:      strings.TrimSpace(in.Reason),
			Status:      StatusPending,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return Refund{}, apperr.Classify(err)
	}

	s.logger.Info("refund applied", slog.Int64("refund_id", out.ID), slog.Int64("order_id", out.OrderID), slog.Int64("user_id", out.ApplicantID))
	s.notify(ctx, notification.ToUser(notification.KindRefundApplied, out.ApplicantID, "refund request submitted"))
	return out, nil
}

// Approve accepts a pending refund and reverses the order payment.
func (s *Service) Approve(ctx context.Context, actor auth.Principal, refundID int64) (Refund, error) {
	r, err := s.review(ctx, actor, refundID, func(ctx context.Context, tx Tx, r *Refund) error {
		o, err := tx.LockOrder(ctx, r.OrderID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return apperr.E(apperr.KindInvalidState, "refunded order no longer exists")
			}
			return err
		}
		if o.Status != order.StatusCompleted {
			return apperr.E(apperr.KindInvalidState, "order is not completed")
		}
		if _, err := s.engine.Reverse(ctx, tx, ledger.Posting{
			FromID:  o.ClientID,
			ToID:    o.CompanionID,
			Amount:  r.Amount,
			OrderID: o.ID,
		}); err != nil {
			return err
		}
		r.Status = StatusApproved
		return nil
	})
	if err != nil {
		return Refund{}, err
	}
	s.logger.Info("refund approved", slog.Int64("refund_id", r.ID), slog.Int64("order_id", r.OrderID), slog.Int64("user_id", actor.ID))
	s.notify(ctx, notification.ToUser(notification.KindRefundApproved, r.ApplicantID, "refund approved"))
	return r, nil
}

// Reject declines a pending refund. Balances are untouched.
func (s *Service) Reject(ctx context.Context, actor auth.Principal, refundID int64) (Refund, error) {
	r, err := s.review(ctx, actor, refundID, func(_ context.Context, _ Tx, r *Refund) error {
		r.Status = StatusRejected
		return nil
	})
	if err != nil {
		return Refund{}, err
	}
	s.logger.Info("refund rejected", slog.Int64("refund_id", r.ID), slog.Int64("order_id", r.OrderID), slog.Int64("user_id", actor.ID))
	s.notify(ctx, notification.ToUser(notification.KindRefundRejected, r.ApplicantID, "refund rejected"))
	return r, nil
}

// ListMine returns the applicant's refund requests, newest first.
func (s *Service) ListMine(ctx context.Context, applicantID int64) ([]View, error) {
	views, err := s.store.List(ctx, Filter{ApplicantID: applicantID})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return views, nil
}

// ListAll returns every refund matching f. Admin only.
func (s *Service) ListAll(ctx context.Context, actor auth.Principal, f Filter) ([]View, error) {
	if !actor.IsAdmin() {
		return nil, apperr.E(apperr.KindForbidden, "admin only")
	}
	if f.Status != "" && !f.Status.valid() {
		return nil, apperr.E(apperr.KindValidation, "unknown refund status")
	}
	f.ApplicantID = 0
	f.Keyword = strings.TrimSpace(f.Keyword)
	views, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return views, nil
}

// review checks the admin capability before touching the store, then locks
// the refund and applies decide to a pending request.
func (s *Service) review(ctx context.Context, actor auth.Principal, refundID int64, decide func(context.Context, Tx, *Refund) error) (Refund, error) {
	if !actor.IsAdmin() {
		return Refund{}, apperr.E(apperr.KindForbidden, "admin only")
	}
	var out Refund
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockRefund(ctx, refundID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperr.E(apperr.KindNotFound, "refund not found")
			}
			return err
		}
		if r.Status != StatusPending {
			return apperr.E(apperr.KindInvalidState, "refund already processed")
		}
		if err := decide(ctx, tx, &r); err != nil {
			return err
		}
		now := s.now()
		r.ProcessedAt = &now
		if err := tx.UpdateRefund(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return Refund{}, apperr.Classify(err)
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
