package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord is the row projection held by the persistence layer.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	Salt         string
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
}

// User converts the row into the principal handed to callers.
func (r *UserRecord) User() User {
	return User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Salt:         r.Salt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// UserRepository defines the user directory: any store that can look up
// users by username or id. A miss is (nil, nil); a non-nil error always
// means the backend itself failed. Implementations must be safe for
// concurrent use.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	FindByID(ctx context.Context, id int64) (*UserRecord, error)
	Create(ctx context.Context, username, passwordHash, salt string) (int64, error)
	HasAny(ctx context.Context) (bool, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	const q = `SELECT id, username, passwd, salt, created_at, updated_at FROM users WHERE username=$1`
	return r.scanOne(r.db.QueryRow(ctx, q, username))
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	const q = `SELECT id, username, passwd, salt, created_at, updated_at FROM users WHERE id=$1`
	return r.scanOne(r.db.QueryRow(ctx, q, id))
}

func (r *PgUserRepository) scanOne(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) Create(ctx context.Context, username, passwordHash, salt string) (int64, error) {
	const q = `INSERT INTO users (username, passwd, salt) VALUES ($1,$2,$3) RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, username, passwordHash, salt).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PgUserRepository) HasAny(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
