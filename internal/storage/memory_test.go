package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/identity"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/order"
	"github.com/playmate/playmate/internal/refund"
)

func seedUser(t *testing.T, m *Memory, name string) identity.User {
	t.Helper()
	u, err := m.Users().Create(context.Background(), identity.User{Username: name, Nickname: name, Role: identity.RoleUser})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func TestMemoryUsersUniqueAndOpenAccount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u := seedUser(t, m, "alice")

	if _, err := m.Users().Create(ctx, identity.User{Username: "alice"}); !errors.Is(err, identity.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	bal, err := m.Wallet().Balance(ctx, u.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.IsZero() {
		t.Fatalf("expected zero opening balance, got %s", bal)
	}
}

func TestMemoryTxRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	client := seedUser(t, m, "client")
	companion := seedUser(t, m, "companion")

	o, err := m.Orders().Create(ctx, order.Order{
		OrderNo: "n1", ClientID: client.ID, CompanionID: companion.ID,
		Amount: decimal.RequireFromString("10"), Status: order.StatusAccepted, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	boom := errors.New("boom")
	err = m.Orders().WithinTx(ctx, func(ctx context.Context, tx order.Tx) error {
		locked, err := tx.LockOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		locked.Status = order.StatusCompleted
		if err := tx.UpdateOrder(ctx, locked); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, client.ID, decimal.RequireFromString("-10")); err != nil {
			return err
		}
		if _, err := tx.AppendEntry(ctx, ledger.Entry{UserID: client.ID, Kind: ledger.EntryPayment}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := m.Orders().Get(ctx, o.ID)
	if got.Status != order.StatusAccepted {
		t.Fatalf("status leaked from rolled back tx: %s", got.Status)
	}
	if bal, _ := m.Wallet().Balance(ctx, client.ID); !bal.IsZero() {
		t.Fatalf("balance leaked from rolled back tx: %s", bal)
	}
	rows, _ := m.Wallet().FlowRows(ctx, client.ID)
	if len(rows) != 0 {
		t.Fatalf("entries leaked from rolled back tx: %d", len(rows))
	}
}

func TestMemoryTxHonoursCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.Orders().WithinTx(ctx, func(context.Context, order.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}

func TestMemoryRefundListFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	client := seedUser(t, m, "kim")
	companion := seedUser(t, m, "lee")
	o, _ := m.Orders().Create(ctx, order.Order{OrderNo: "abc123", ClientID: client.ID, CompanionID: companion.ID, Status: order.StatusCompleted})

	err := m.Refunds().WithinTx(ctx, func(ctx context.Context, tx refund.Tx) error {
		_, err := tx.CreateRefund(ctx, refund.Refund{OrderID: o.ID, ApplicantID: client.ID, Status: refund.StatusPending, CreatedAt: time.Now()})
		return err
	})
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}

	cases := []struct {
		name string
		f    refund.Filter
		want int
	}{
		{"all", refund.Filter{}, 1},
		{"status match", refund.Filter{Status: refund.StatusPending}, 1},
		{"status miss", refund.Filter{Status: refund.StatusApproved}, 0},
		{"order number", refund.Filter{Keyword: "c12"}, 1},
		{"companion nickname", refund.Filter{Keyword: "LEE"}, 1},
		{"applicant", refund.Filter{ApplicantID: companion.ID}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			views, err := m.Refunds().List(ctx, tc.f)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(views) != tc.want {
				t.Fatalf("expected %d refunds, got %d", tc.want, len(views))
			}
		})
	}

	views, _ := m.Refunds().List(ctx, refund.Filter{})
	if views[0].OrderNo != "abc123" || views[0].ApplicantNickname != "kim" || views[0].CompanionNickname != "lee" {
		t.Fatalf("unexpected join: %+v", views[0])
	}
}

func TestMemoryFlowRowsToleratesMissingCounterpart(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	client := seedUser(t, m, "c")
	companion := seedUser(t, m, "p")
	o, _ := m.Orders().Create(ctx, order.Order{OrderNo: "x", ClientID: client.ID, CompanionID: companion.ID})

	err := m.Wallet().WithinTx(ctx, func(ctx context.Context, acc ledger.Accounts) error {
		id := o.ID
		_, err := acc.AppendEntry(ctx, ledger.Entry{UserID: client.ID, Kind: ledger.EntryPayment, OrderID: &id, CreatedAt: time.Now()})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	m.RemoveUser(companion.ID)
	rows, err := m.Wallet().FlowRows(ctx, client.ID)
	if err != nil {
		t.Fatalf("flow rows: %v", err)
	}
	if len(rows) != 1 || rows[0].OrderNo == nil || rows[0].CounterpartID != nil {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
