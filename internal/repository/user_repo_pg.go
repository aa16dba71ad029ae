package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the credential/account gateway. Username lookups are
// case-insensitive; the stored hash is opaque to the engine.
type UserRepository interface {
	Exists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, username string, passwordHash []byte, balance int64) error
	PasswordHash(ctx context.Context, username string) ([]byte, error)
}

// ErrUserNotFound is returned by PasswordHash for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

type PGUserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &PGUserRepository{db: db}
}

func (r *PGUserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`, username).Scan(&found)
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *PGUserRepository) Create(ctx context.Context, username string, passwordHash []byte, balance int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (username, password_hash, balance) VALUES ($1, $2, $3)`, username, passwordHash, balance)
	return err
}

func (r *PGUserRepository) PasswordHash(ctx context.Context, username string) ([]byte, error) {
	var hash []byte
	err := r.db.QueryRow(ctx, `SELECT password_hash FROM users WHERE LOWER(username) = LOWER($1)`, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return hash, nil
}

var _ UserRepository = (*PGUserRepository)(nil)
