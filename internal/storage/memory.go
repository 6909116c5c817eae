package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/identity"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/order"
	"github.com/playmate/playmate/internal/refund"
	"github.com/playmate/playmate/internal/wallet"
)

// Memory keeps every table in process. Transactions are serialized under one
// mutex and run against a cloned workspace that replaces the live state only
// when the callback succeeds.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	users        map[int64]identity.User
	nextUserID   int64
	orders       map[int64]order.Order
	nextOrderID  int64
	refunds      map[int64]refund.Refund
	nextRefundID int64
	book         *ledger.InMemory
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: &memState{
		users:   make(map[int64]identity.User),
		orders:  make(map[int64]order.Order),
		refunds: make(map[int64]refund.Refund),
		book:    ledger.NewInMemory(),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:        make(map[int64]identity.User, len(s.users)),
		nextUserID:   s.nextUserID,
		orders:       make(map[int64]order.Order, len(s.orders)),
		nextOrderID:  s.nextOrderID,
		refunds:      make(map[int64]refund.Refund, len(s.refunds)),
		nextRefundID: s.nextRefundID,
		book:         s.book.Clone(),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	return c
}

func (m *Memory) withinTx(ctx context.Context, fn func(*memTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{InMemory: work.book, st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// memTx implements order.Tx and refund.Tx over a workspace. The embedded
// book supplies ledger.Accounts.
type memTx struct {
	*ledger.InMemory
	st *memState
}

func (t *memTx) LockOrder(_ context.Context, id int64) (order.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (t *memTx) UpdateOrder(_ context.Context, o order.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *memTx) LockRefund(_ context.Context, id int64) (refund.Refund, error) {
	r, ok := t.st.refunds[id]
	if !ok {
		return refund.Refund{}, refund.ErrNotFound
	}
	return r, nil
}

func (t *memTx) HasActiveRefund(_ context.Context, orderID int64) (bool, error) {
	for _, r := range t.st.refunds {
		if r.OrderID == orderID && r.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateRefund(_ context.Context, r refund.Refund) (refund.Refund, error) {
	t.st.nextRefundID++
	r.ID = t.st.nextRefundID
	t.st.refunds[r.ID] = r
	return r, nil
}

func (t *memTx) UpdateRefund(_ context.Context, r refund.Refund) error {
	if _, ok := t.st.refunds[r.ID]; !ok {
		return refund.ErrNotFound
	}
	t.st.refunds[r.ID] = r
	return nil
}

// Users is the identity.Repository view.
func (m *Memory) Users() identity.Repository { return memoryUsers{m} }

// Orders is the order.Store view.
func (m *Memory) Orders() order.Store { return memoryOrders{m} }

// Refunds is the refund.Store view.
func (m *Memory) Refunds() refund.Store { return memoryRefunds{m} }

// Wallet is the wallet.Store view.
func (m *Memory) Wallet() wallet.Store { return memoryWallet{m} }

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// RemoveUser deletes a user row and its account, leaving orders and entries
// that reference it in place.
func (m *Memory) RemoveUser(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.users, id)
	m.state.book.Drop(id)
}

// RemoveOrder deletes an order row, leaving refunds and entries that
// reference it in place.
func (m *Memory) RemoveOrder(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.orders, id)
}

// TotalBalance sums every account.
func (m *Memory) TotalBalance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for id := range m.state.users {
		if bal, err := m.state.book.Balance(id); err == nil {
			total = total.Add(bal)
		}
	}
	return total
}

type memoryUsers struct{ m *Memory }

func (r memoryUsers) Create(ctx context.Context, user identity.User) (identity.User, error) {
	err := r.m.withinTx(ctx, func(tx *memTx) error {
		for _, u := range tx.st.users {
			if u.Username == user.Username {
				return identity.ErrUserExists
			}
		}
		tx.st.nextUserID++
		user.ID = tx.st.nextUserID
		tx.st.users[user.ID] = user
		tx.Open(user.ID)
		return nil
	})
	if err != nil {
		return identity.User{}, err
	}
	return user, nil
}

func (r memoryUsers) FindByUsername(_ context.Context, username string) (identity.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.state.users {
		if u.Username == username {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrUserNotFound
}

func (r memoryUsers) FindByID(_ context.Context, id int64) (identity.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.state.users[id]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

type memoryOrders struct{ m *Memory }

func (s memoryOrders) Create(ctx context.Context, o order.Order) (order.Order, error) {
	err := s.m.withinTx(ctx, func(tx *memTx) error {
		tx.st.nextOrderID++
		o.ID = tx.st.nextOrderID
		tx.st.orders[o.ID] = o
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s memoryOrders) Get(_ context.Context, id int64) (order.Order, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	o, ok := s.m.state.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s memoryOrders) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]order.Order, 0)
	for _, o := range s.m.state.orders {
		if f.ClientID != 0 && o.ClientID != f.ClientID {
			continue
		}
		if f.CompanionID != 0 && o.CompanionID != f.CompanionID {
			continue
		}
		if f.Keyword != "" && !strings.Contains(o.OrderNo, f.Keyword) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s memoryOrders) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.m.withinTx(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

type memoryRefunds struct{ m *Memory }

func (s memoryRefunds) List(_ context.Context, f refund.Filter) ([]refund.View, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	st := s.m.state
	keyword := strings.ToLower(f.Keyword)
	out := make([]refund.View, 0)
	for _, r := range st.refunds {
		if f.ApplicantID != 0 && r.ApplicantID != f.ApplicantID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		v := refund.View{Refund: r}
		if o, ok := st.orders[r.OrderID]; ok {
			v.OrderNo = o.OrderNo
			v.CompanionID = o.CompanionID
			if u, ok := st.users[o.CompanionID]; ok {
				v.CompanionNickname = u.Nickname
			}
		}
		if u, ok := st.users[r.ApplicantID]; ok {
			v.ApplicantNickname = u.Nickname
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(v.OrderNo), keyword) &&
			!strings.Contains(strings.ToLower(v.ApplicantNickname), keyword) &&
			!strings.Contains(strings.ToLower(v.CompanionNickname), keyword) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s memoryRefunds) WithinTx(ctx context.Context, fn func(ctx context.Context, tx refund.Tx) error) error {
	return s.m.withinTx(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

type memoryWallet struct{ m *Memory }

func (s memoryWallet) FlowRows(_ context.Context, userID int64) ([]wallet.FlowRow, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	st := s.m.state
	entries := st.book.Entries(userID)
	rows := make([]wallet.FlowRow, 0, len(entries))
	for _, e := range entries {
		row := wallet.FlowRow{Entry: e}
		if e.OrderID != nil {
			if o, ok := st.orders[*e.OrderID]; ok {
				no := o.OrderNo
				row.OrderNo = &no
				other := o.CompanionID
				if o.CompanionID == userID {
					other = o.ClientID
				}
				if u, ok := st.users[other]; ok {
					id, nick, avatar := u.ID, u.Nickname, u.Avatar
					row.CounterpartID = &id
					row.CounterpartNickname = &nick
					row.CounterpartAvatar = &avatar
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s memoryWallet) Balance(_ context.Context, userID int64) (decimal.Decimal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.state.book.Balance(userID)
}

func (s memoryWallet) WithinTx(ctx context.Context, fn func(ctx context.Context, acc ledger.Accounts) error) error {
	return s.m.withinTx(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}
