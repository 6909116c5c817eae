package order_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/identity"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/logging"
	"github.com/playmate/playmate/internal/notification"
	"github.com/playmate/playmate/internal/order"
	"github.com/playmate/playmate/internal/storage"
	"github.com/playmate/playmate/internal/wallet"
)

type fixture struct {
	store   *storage.Memory
	svc     *order.Service
	wallets *wallet.Service
	notes   *notification.Recorder
	admin   auth.Principal
	client  identity.User
	partner identity.User
}

func newFixture(t *testing.T, clientFunds string, opts ...ledger.Option) *fixture {
	t.Helper()
	store := storage.NewMemory()
	logger := logging.Discard()
	engine := ledger.NewEngine(append([]ledger.Option{ledger.WithLogger(logger)}, opts...)...)
	notes := &notification.Recorder{}
	f := &fixture{
		store:   store,
		svc:     order.NewService(store.Orders(), engine, notes, logger),
		wallets: wallet.NewService(store.Wallet(), engine, logger),
		notes:   notes,
		admin:   auth.Principal{ID: 999, Username: "admin", Role: identity.RoleAdmin},
	}
	f.client = f.user(t, "client", false)
	f.partner = f.user(t, "companion", true)
	if clientFunds != "" {
		if _, err := f.wallets.Deposit(context.Background(), f.admin, f.client.ID, dec(clientFunds)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return f
}

func (f *fixture) user(t *testing.T, name string, companion bool) identity.User {
	t.Helper()
	u, err := f.store.Users().Create(context.Background(), identity.User{Username: name, Nickname: name, Role: identity.RoleUser, IsCompanion: companion})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	b, err := f.wallets.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Amount
}

func (f *fixture) accepted(t *testing.T, amount string) order.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.svc.Create(ctx, order.CreateInput{
		ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 1,
		Amount: dec(amount), DurationHours: dec("2"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Accept(ctx, o.ID, f.partner.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return o
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func TestCreateAssignsOrderNoAndPending(t *testing.T) {
	f := newFixture(t, "")
	o, err := f.svc.Create(context.Background(), order.CreateInput{
		ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 3,
		Amount: dec("25.50"), DurationHours: dec("1.5"), Remark: "  evening  ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != order.StatusPending || len(o.OrderNo) != 32 || o.Remark != "evening" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if !f.balance(t, f.client.ID).IsZero() {
		t.Fatalf("create must not move money")
	}
	if kinds := f.notes.Kinds(); len(kinds) != 1 || kinds[0] != notification.KindOrderCreated {
		t.Fatalf("unexpected notifications %v", kinds)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, "")
	base := order.CreateInput{ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 1, Amount: dec("10"), DurationHours: dec("1")}

	cases := map[string]func(in *order.CreateInput){
		"self order":     func(in *order.CreateInput) { in.CompanionID = in.ClientID },
		"zero duration":  func(in *order.CreateInput) { in.DurationHours = decimal.Zero },
		"negative price": func(in *order.CreateInput) { in.Amount = dec("-1") },
		"sub-cent price": func(in *order.CreateInput) { in.Amount = dec("0.001") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			expectKind(t, err, apperr.KindValidation)
		})
	}

	mine, _ := f.svc.ListMine(context.Background(), f.client.ID, false)
	if len(mine) != 0 {
		t.Fatalf("rejected orders must not be persisted, found %d", len(mine))
	}
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	o, _ := f.svc.Create(ctx, order.CreateInput{ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 1, Amount: dec("10"), DurationHours: dec("1")})

	_, err := f.svc.Accept(ctx, o.ID, f.client.ID)
	expectKind(t, err, apperr.KindNotFound)
	_, err = f.svc.Accept(ctx, 12345, f.partner.ID)
	expectKind(t, err, apperr.KindNotFound)

	got, err := f.svc.Accept(ctx, o.ID, f.partner.ID)
	if err != nil || got.Status != order.StatusAccepted {
		t.Fatalf("accept: %v %+v", err, got)
	}
	_, err = f.svc.Accept(ctx, o.ID, f.partner.ID)
	expectKind(t, err, apperr.KindInvalidState)
}

func TestCompleteTransfersAmount(t *testing.T) {
	f := newFixture(t, "100.00")
	o := f.accepted(t, "50.00")

	done, err := f.svc.Complete(context.Background(), o.ID, f.client.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != order.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected order %+v", done)
	}
	if !f.balance(t, f.client.ID).Equal(dec("50")) || !f.balance(t, f.partner.ID).Equal(dec("50")) {
		t.Fatalf("unexpected balances %s / %s", f.balance(t, f.client.ID), f.balance(t, f.partner.ID))
	}
}

func TestCompleteTwiceIsRejected(t *testing.T) {
	f := newFixture(t, "100.00")
	o := f.accepted(t, "50.00")
	ctx := context.Background()

	if _, err := f.svc.Complete(ctx, o.ID, f.client.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := f.svc.Complete(ctx, o.ID, f.client.ID)
	expectKind(t, err, apperr.KindInvalidState)
	if !f.balance(t, f.client.ID).Equal(dec("50")) {
		t.Fatalf("second completion moved money")
	}
}

func TestCompleteRequiresAcceptedAndOwner(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()
	o, _ := f.svc.Create(ctx, order.CreateInput{ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 1, Amount: dec("10"), DurationHours: dec("1")})

	_, err := f.svc.Complete(ctx, o.ID, f.client.ID)
	expectKind(t, err, apperr.KindInvalidState)

	f.svc.Accept(ctx, o.ID, f.partner.ID) // nolint:errcheck
	_, err = f.svc.Complete(ctx, o.ID, f.partner.ID)
	expectKind(t, err, apperr.KindNotFound)
}

func TestCompleteWithoutFundsRollsBackStatus(t *testing.T) {
	f := newFixture(t, "20.00", ledger.WithOverdraft(false))
	o := f.accepted(t, "50.00")
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, o.ID, f.client.ID)
	expectKind(t, err, apperr.KindInvalidState)

	got, err := f.svc.Get(ctx, o.ID, f.client.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != order.StatusAccepted {
		t.Fatalf("status must roll back with the failed transfer, got %s", got.Status)
	}
	if !f.balance(t, f.client.ID).Equal(dec("20")) || !f.balance(t, f.partner.ID).IsZero() {
		t.Fatalf("balances changed by failed completion")
	}
}

func TestCompleteFromZeroBalanceOverdrawsClient(t *testing.T) {
	f := newFixture(t, "")
	o := f.accepted(t, "50.00")

	if _, err := f.svc.Complete(context.Background(), o.ID, f.client.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := f.balance(t, f.client.ID); !got.Equal(dec("-50.00")) {
		t.Fatalf("client balance %s, want -50.00", got)
	}
	if got := f.balance(t, f.partner.ID); !got.Equal(dec("50.00")) {
		t.Fatalf("companion balance %s, want 50.00", got)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	stranger := f.user(t, "stranger", false)

	o, _ := f.svc.Create(ctx, order.CreateInput{ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 1, Amount: dec("10"), DurationHours: dec("1")})
	_, err := f.svc.Cancel(ctx, o.ID, stranger.ID)
	expectKind(t, err, apperr.KindNotFound)

	got, err := f.svc.Cancel(ctx, o.ID, f.partner.ID)
	if err != nil || got.Status != order.StatusCancelled {
		t.Fatalf("cancel by companion: %v %+v", err, got)
	}
	_, err = f.svc.Accept(ctx, o.ID, f.partner.ID)
	expectKind(t, err, apperr.KindInvalidState)

	accepted := f.accepted(t, "10")
	_, err = f.svc.Cancel(ctx, accepted.ID, f.client.ID)
	expectKind(t, err, apperr.KindInvalidState)
}

func TestEvaluateOnce(t *testing.T) {
	f := newFixture(t, "100.00")
	o := f.accepted(t, "10.00")
	ctx := context.Background()

	_, err := f.svc.Evaluate(ctx, o.ID, f.client.ID, 5, "")
	expectKind(t, err, apperr.KindInvalidState)

	if _, err := f.svc.Complete(ctx, o.ID, f.client.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	for _, rating := range []int{0, 6} {
		_, err = f.svc.Evaluate(ctx, o.ID, f.client.ID, rating, "x")
		expectKind(t, err, apperr.KindValidation)
	}
	got, _ := f.svc.Get(ctx, o.ID, f.client.ID)
	if got.Rated() {
		t.Fatalf("out of range rating must not be stored")
	}

	rated, err := f.svc.Evaluate(ctx, o.ID, f.client.ID, 4, "  great  ")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if *rated.Rating != 4 || rated.Review == nil || *rated.Review != "great" || rated.EvaluatedAt == nil {
		t.Fatalf("unexpected evaluation %+v", rated)
	}
	_, err = f.svc.Evaluate(ctx, o.ID, f.client.ID, 3, "")
	expectKind(t, err, apperr.KindInvalidState)
}

func TestListings(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	first, _ := f.svc.Create(ctx, order.CreateInput{ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 1, Amount: dec("10"), DurationHours: dec("1")})
	second, _ := f.svc.Create(ctx, order.CreateInput{ClientID: f.client.ID, CompanionID: f.partner.ID, GameID: 2, Amount: dec("20"), DurationHours: dec("1")})

	mine, err := f.svc.ListMine(ctx, f.client.ID, false)
	if err != nil || len(mine) != 2 {
		t.Fatalf("list mine: %v %d", err, len(mine))
	}
	if mine[0].ID != second.ID {
		t.Fatalf("expected newest first")
	}
	asCompanion, _ := f.svc.ListMine(ctx, f.partner.ID, true)
	if len(asCompanion) != 2 {
		t.Fatalf("expected 2 companion orders, got %d", len(asCompanion))
	}
	if none, _ := f.svc.ListMine(ctx, f.partner.ID, false); len(none) != 0 {
		t.Fatalf("companion has no client orders")
	}

	_, err = f.svc.ListAll(ctx, auth.Principal{ID: f.client.ID, Role: identity.RoleUser}, "")
	expectKind(t, err, apperr.KindForbidden)

	found, err := f.svc.ListAll(ctx, f.admin, first.OrderNo[:12])
	if err != nil || len(found) != 1 || found[0].ID != first.ID {
		t.Fatalf("keyword search: %v %+v", err, found)
	}
}

func TestConcurrentCompletionsConserveBalance(t *testing.T) {
	f := newFixture(t, "300.00")
	ctx := context.Background()
	if _, err := f.wallets.Deposit(ctx, f.admin, f.partner.ID, dec("300.00")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	type job struct{ id, payer int64 }
	var jobs []job
	for i := 0; i < 30; i++ {
		client, companion := f.client.ID, f.partner.ID
		if i%3 == 0 {
			client, companion = companion, client
		}
		o, err := f.svc.Create(ctx, order.CreateInput{ClientID: client, CompanionID: companion, GameID: 1, Amount: dec("9.99"), DurationHours: dec("1")})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := f.svc.Accept(ctx, o.ID, companion); err != nil {
			t.Fatalf("accept: %v", err)
		}
		jobs = append(jobs, job{o.ID, client})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			_, err := f.svc.Complete(gctx, j.id, j.payer)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if total := f.store.TotalBalance(); !total.Equal(dec("600")) {
		t.Fatalf("total balance drifted to %s", total)
	}
	// 20 orders paid client->companion and 10 the other way.
	if want := dec("300").Sub(dec("99.90")); !f.balance(t, f.client.ID).Equal(want) {
		t.Fatalf("client balance %s, want %s", f.balance(t, f.client.ID), want)
	}
}
