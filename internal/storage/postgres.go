package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/order"
	"github.com/playmate/playmate/internal/refund"
	"github.com/playmate/playmate/internal/wallet"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Postgres implements the aggregate stores on one pgx pool. Every
// transaction sets a local lock_timeout so a blocked row lock surfaces as a
// transient error instead of hanging the request.
type Postgres struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgres wraps pool. A zero lockTimeout leaves the server default.
func NewPostgres(pool *pgxpool.Pool, lockTimeout time.Duration) *Postgres {
	return &Postgres{pool: pool, lockTimeout: lockTimeout}
}

// Orders is the order.Store view.
func (p *Postgres) Orders() order.Store { return pgOrders{p} }

// Refunds is the refund.Store view.
func (p *Postgres) Refunds() refund.Store { return pgRefunds{p} }

// Wallet is the wallet.Store view.
func (p *Postgres) Wallet() wallet.Store { return pgWallet{p} }

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) withinTx(ctx context.Context, fn func(*pgTx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperr.Classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if p.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return apperr.Classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(&pgTx{PostgresAccounts: ledger.NewPostgresAccounts(tx), tx: tx}); err != nil {
		return apperr.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// pgTx implements order.Tx and refund.Tx. The embedded accounts view
// supplies ledger.Accounts on the same transaction.
type pgTx struct {
	*ledger.PostgresAccounts
	tx pgx.Tx
}

const orderColumns = `id, order_no, client_id, companion_id, game_id, amount::text, duration_hours::text,
        remark, status, completed_at, rating, review, evaluated_at, created_at`

func (t *pgTx) LockOrder(ctx context.Context, id int64) (order.Order, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o order.Order) error {
	const query = `
        UPDATE orders
        SET status = $2, completed_at = $3, rating = $4, review = $5, evaluated_at = $6
        WHERE id = $1`
	cmd, err := t.tx.Exec(ctx, query, o.ID, string(o.Status), o.CompletedAt, o.Rating, o.Review, o.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

const refundColumns = `id, order_id, applicant_id, amount::text, reason, status, processed_at, created_at`

func (t *pgTx) LockRefund(ctx context.Context, id int64) (refund.Refund, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1 FOR UPDATE`, id)
	var (
		r      refund.Refund
		amount string
		status string
	)
	if err := row.Scan(&r.ID, &r.OrderID, &r.ApplicantID, &amount, &r.Reason, &status, &r.ProcessedAt, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return refund.Refund{}, refund.ErrNotFound
		}
		return refund.Refund{}, fmt.Errorf("lock refund: %w", err)
	}
	var err error
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return refund.Refund{}, fmt.Errorf("parse refund amount: %w", err)
	}
	r.Status = refund.Status(status)
	return r, nil
}

func (t *pgTx) HasActiveRefund(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refund_requests WHERE order_id = $1 AND status IN ('pending', 'approved'))`,
		orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active refund: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CreateRefund(ctx context.Context, r refund.Refund) (refund.Refund, error) {
	const query = `
        INSERT INTO refund_requests (order_id, applicant_id, amount, reason, status, created_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6)
        RETURNING id`
	err := t.tx.QueryRow(ctx, query, r.OrderID, r.ApplicantID, r.Amount.String(), r.Reason, string(r.Status), r.CreatedAt).Scan(&r.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return refund.Refund{}, apperr.Wrap(apperr.KindConflict, refund.ErrActiveRefund.Error(), refund.ErrActiveRefund)
		}
		return refund.Refund{}, fmt.Errorf("insert refund: %w", err)
	}
	return r, nil
}

func (t *pgTx) UpdateRefund(ctx context.Context, r refund.Refund) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE refund_requests SET status = $2, processed_at = $3 WHERE id = $1`,
		r.ID, string(r.Status), r.ProcessedAt)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return refund.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o             order.Order
		amount, hours string
		status        string
		rating        *int32
	)
	err := row.Scan(&o.ID, &o.OrderNo, &o.ClientID, &o.CompanionID, &o.GameID, &amount, &hours,
		&o.Remark, &status, &o.CompletedAt, &rating, &o.Review, &o.EvaluatedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("scan order: %w", err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return order.Order{}, fmt.Errorf("parse order amount: %w", err)
	}
	if o.DurationHours, err = decimal.NewFromString(hours); err != nil {
		return order.Order{}, fmt.Errorf("parse order duration: %w", err)
	}
	if rating != nil {
		r := int(*rating)
		o.Rating = &r
	}
	o.Status = order.Status(status)
	return o, nil
}

type pgOrders struct{ p *Postgres }

func (s pgOrders) Create(ctx context.Context, o order.Order) (order.Order, error) {
	const query = `
        INSERT INTO orders (order_no, client_id, companion_id, game_id, amount, duration_hours, remark, status, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
        RETURNING id`
	err := s.p.pool.QueryRow(ctx, query, o.OrderNo, o.ClientID, o.CompanionID, o.GameID,
		o.Amount.String(), o.DurationHours.String(), o.Remark, string(o.Status), o.CreatedAt).Scan(&o.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return order.Order{}, apperr.Wrap(apperr.KindValidation, "order violates a field constraint", err)
		}
		return order.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s pgOrders) Get(ctx context.Context, id int64) (order.Order, error) {
	return scanOrder(s.p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (s pgOrders) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != 0 {
		args = append(args, f.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.CompanionID != 0 {
		args = append(args, f.CompanionID)
		where = append(where, fmt.Sprintf("companion_id = $%d", len(args)))
	}
	if f.Keyword != "" {
		args = append(args, likePattern(f.Keyword))
		where = append(where, fmt.Sprintf(`order_no LIKE $%d ESCAPE '\'`, len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches keyword as a literal substring under ESCAPE '\'.
func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}

func (s pgOrders) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.p.withinTx(ctx, func(tx *pgTx) error { return fn(ctx, tx) })
}

type pgRefunds struct{ p *Postgres }

func (s pgRefunds) List(ctx context.Context, f refund.Filter) ([]refund.View, error) {
	var (
		where []string
		args  []any
	)
	if f.ApplicantID != 0 {
		args = append(args, f.ApplicantID)
		where = append(where, fmt.Sprintf("r.applicant_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.Keyword != "" {
		args = append(args, likePattern(f.Keyword))
		n := len(args)
		where = append(where, fmt.Sprintf(`(o.order_no ILIKE $%[1]d ESCAPE '\' OR a.nickname ILIKE $%[1]d ESCAPE '\' OR c.nickname ILIKE $%[1]d ESCAPE '\')`, n))
	}

	query := `
        SELECT r.id, r.order_id, r.applicant_id, r.amount::text, r.reason, r.status, r.processed_at, r.created_at,
               COALESCE(o.order_no, ''), COALESCE(o.companion_id, 0), COALESCE(a.nickname, ''), COALESCE(c.nickname, '')
        FROM refund_requests r
        LEFT JOIN orders o ON o.id = r.order_id
        LEFT JOIN users a ON a.id = r.applicant_id
        LEFT JOIN users c ON c.id = o.companion_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := s.p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	out := make([]refund.View, 0)
	for rows.Next() {
		var (
			v      refund.View
			amount string
			status string
		)
		if err := rows.Scan(&v.ID, &v.OrderID, &v.ApplicantID, &amount, &v.Reason, &status, &v.ProcessedAt, &v.CreatedAt,
			&v.OrderNo, &v.CompanionID, &v.ApplicantNickname, &v.CompanionNickname); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		if v.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse refund amount: %w", err)
		}
		v.Status = refund.Status(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s pgRefunds) WithinTx(ctx context.Context, fn func(ctx context.Context, tx refund.Tx) error) error {
	return s.p.withinTx(ctx, func(tx *pgTx) error { return fn(ctx, tx) })
}

type pgWallet struct{ p *Postgres }

// FlowRows joins each entry with its order and the order's other party.
// Both joins are LEFT so a missing order or user yields NULL columns.
func (s pgWallet) FlowRows(ctx context.Context, userID int64) ([]wallet.FlowRow, error) {
	const query = `
        SELECT we.id, we.user_id, we.kind, we.amount::text, we.order_id, we.created_at,
               o.order_no, u.id, u.nickname, u.avatar
        FROM wallet_entries we
        LEFT JOIN orders o ON o.id = we.order_id
        LEFT JOIN users u ON u.id = CASE
            WHEN o.client_id = we.user_id THEN o.companion_id
            WHEN o.companion_id = we.user_id THEN o.client_id
        END
        WHERE we.user_id = $1
        ORDER BY we.created_at DESC, we.id DESC`

	rows, err := s.p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet flow: %w", err)
	}
	defer rows.Close()

	out := make([]wallet.FlowRow, 0)
	for rows.Next() {
		var (
			row    wallet.FlowRow
			amount string
		)
		if err := rows.Scan(&row.Entry.ID, &row.Entry.UserID, &row.Entry.Kind, &amount, &row.Entry.OrderID, &row.Entry.CreatedAt,
			&row.OrderNo, &row.CounterpartID, &row.CounterpartNickname, &row.CounterpartAvatar); err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		if row.Entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse entry amount: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s pgWallet) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return ledger.Balance(ctx, s.p.pool, userID)
}

func (s pgWallet) WithinTx(ctx context.Context, fn func(ctx context.Context, acc ledger.Accounts) error) error {
	return s.p.withinTx(ctx, func(tx *pgTx) error { return fn(ctx, tx) })
}
