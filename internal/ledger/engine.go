package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/apperr"
)

// Posting describes a two-party movement. For Transfer, FromID pays ToID.
// For Reverse, FromID is the original payer and gets the money back.
type Posting struct {
	FromID  int64
	ToID    int64
	Amount  decimal.Decimal
	OrderID int64
}

// Result reports both balances after a posting.
type Result struct {
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

// Engine is the only component allowed to change balances. It never opens
// transactions itself: callers pass the Accounts view of the transaction that
// also carries their status write, so both commit or neither does.
type Engine struct {
	allowOverdraft bool
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithOverdraft controls whether Transfer may take the payer below zero.
// Overdraft is allowed by default; WithOverdraft(false) rejects such debits.
func WithOverdraft(allow bool) Option {
	return func(e *Engine) { e.allowOverdraft = allow }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for settlement events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds a settlement engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{allowOverdraft: true, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateAmount checks that amount is positive with at most two fractional digits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.E(apperr.KindValidation, "amount must be greater than 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.E(apperr.KindValidation, "amount must have at most 2 decimal places")
	}
	return nil
}

// Transfer debits p.FromID and credits p.ToID by p.Amount.
func (e *Engine) Transfer(ctx context.Context, acc Accounts, p Posting) (Result, error) {
	if err := e.validate(p); err != nil {
		return Result{}, err
	}

	from, to, err := e.lockPair(ctx, acc, p)
	if err != nil {
		return Result{}, err
	}

	fromBalance := from.Balance.Sub(p.Amount)
	if fromBalance.IsNegative() && !e.allowOverdraft {
		return Result{}, apperr.Wrap(apperr.KindInvalidState, "insufficient balance", ErrInsufficientFunds)
	}
	toBalance := to.Balance.Add(p.Amount)

	if err := e.apply(ctx, acc, p, fromBalance, toBalance, EntryPayment, EntryIncome, p.Amount.Neg(), p.Amount); err != nil {
		return Result{}, err
	}
	e.log("ledger.transfer", p)
	return Result{FromBalance: fromBalance, ToBalance: toBalance}, nil
}

// Reverse undoes a Transfer: p.FromID (original payer) is credited and
// p.ToID (original payee) is debited. The payee may go negative.
func (e *Engine) Reverse(ctx context.Context, acc Accounts, p Posting) (Result, error) {
	if err := e.validate(p); err != nil {
		return Result{}, err
	}

	from, to, err := e.lockPair(ctx, acc, p)
	if err != nil {
		return Result{}, err
	}

	fromBalance := from.Balance.Add(p.Amount)
	toBalance := to.Balance.Sub(p.Amount)

	if err := e.apply(ctx, acc, p, fromBalance, toBalance, EntryRefund, EntryRefundDebit, p.Amount, p.Amount.Neg()); err != nil {
		return Result{}, err
	}
	e.log("ledger.reverse", p)
	return Result{FromBalance: fromBalance, ToBalance: toBalance}, nil
}

// Deposit credits a single account with a movement not linked to any order.
func (e *Engine) Deposit(ctx context.Context, acc Accounts, userID int64, amount decimal.Decimal) (Account, error) {
	if err := ValidateAmount(amount); err != nil {
		return Account{}, err
	}
	account, err := lock(ctx, acc, userID)
	if err != nil {
		return Account{}, err
	}
	account.Balance = account.Balance.Add(amount)
	if err := acc.SetBalance(ctx, userID, account.Balance); err != nil {
		return Account{}, fmt.Errorf("ledger: set balance: %w", err)
	}
	if _, err := acc.AppendEntry(ctx, Entry{UserID: userID, Kind: EntryDeposit, Amount: amount, CreatedAt: e.now()}); err != nil {
		return Account{}, fmt.Errorf("ledger: append entry: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("ledger.deposit", slog.Int64("user_id", userID), slog.String("amount", amount.StringFixed(2)))
	}
	return account, nil
}

func (e *Engine) validate(p Posting) error {
	if err := ValidateAmount(p.Amount); err != nil {
		return err
	}
	if p.FromID == p.ToID {
		return apperr.E(apperr.KindValidation, "cannot settle an account against itself")
	}
	return nil
}

// lockPair locks both rows in ascending user id order. A user can be the
// payer in one order and the payee in another, so a role-based order would
// let two opposite settlements wait on each other.
func (e *Engine) lockPair(ctx context.Context, acc Accounts, p Posting) (Account, Account, error) {
	firstID, secondID := p.FromID, p.ToID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := lock(ctx, acc, firstID)
	if err != nil {
		return Account{}, Account{}, err
	}
	second, err := lock(ctx, acc, secondID)
	if err != nil {
		return Account{}, Account{}, err
	}
	if firstID == p.FromID {
		return first, second, nil
	}
	return second, first, nil
}

func (e *Engine) apply(ctx context.Context, acc Accounts, p Posting, fromBalance, toBalance decimal.Decimal, fromKind, toKind string, fromDelta, toDelta decimal.Decimal) error {
	if err := acc.SetBalance(ctx, p.FromID, fromBalance); err != nil {
		return fmt.Errorf("ledger: set balance: %w", err)
	}
	if err := acc.SetBalance(ctx, p.ToID, toBalance); err != nil {
		return fmt.Errorf("ledger: set balance: %w", err)
	}

	now := e.now()
	orderID := p.OrderID
	var ref *int64
	if orderID != 0 {
		ref = &orderID
	}
	if _, err := acc.AppendEntry(ctx, Entry{UserID: p.FromID, Kind: fromKind, Amount: fromDelta, OrderID: ref, CreatedAt: now}); err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	if _, err := acc.AppendEntry(ctx, Entry{UserID: p.ToID, Kind: toKind, Amount: toDelta, OrderID: ref, CreatedAt: now}); err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	return nil
}

func (e *Engine) log(msg string, p Posting) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg,
		slog.Int64("from_id", p.FromID),
		slog.Int64("to_id", p.ToID),
		slog.Int64("order_id", p.OrderID),
		slog.String("amount", p.Amount.StringFixed(2)),
	)
}

func lock(ctx context.Context, acc Accounts, userID int64) (Account, error) {
	account, err := acc.LockAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, apperr.Wrap(apperr.KindInvalidState, "user account does not exist", err)
		}
		return Account{}, fmt.Errorf("ledger: lock account %d: %w", userID, apperr.Classify(err))
	}
	return account, nil
}
