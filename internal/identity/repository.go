package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserExists is returned when the username is already taken.
	ErrUserExists = errors.New("user exists")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// Repository persists users. Create must also open the user's zero balance
// account so settlement can lock it later.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user together with its balance account.
func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	err = tx.QueryRow(ctx, `INSERT INTO users (username, password_hash, nickname, avatar, role, is_companion, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		user.Username, user.PasswordHash, user.Nickname, user.Avatar, string(user.Role), user.IsCompanion, user.CreatedAt.UTC()).Scan(&user.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("identity: insert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO accounts (user_id, balance) VALUES ($1, 0)`, user.ID); err != nil {
		return User{}, fmt.Errorf("identity: open account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("identity: commit: %w", err)
	}
	return user, nil
}

// FindByUsername fetches a user by login name.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.findOne(ctx, `WHERE username = $1`, username)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, arg any) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, password_hash, nickname, avatar, role, is_companion, created_at FROM users `+where, arg)
	var (
		user User
		role string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Nickname, &user.Avatar, &role, &user.IsCompanion, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.Role = Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
