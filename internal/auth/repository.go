package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"memorialqr/internal/database"
	"memorialqr/internal/session"

	"github.com/jackc/pgx/v5/pgconn"
)

// AccountRepository reads and creates accounts
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*session.Account, error)
	Create(ctx context.Context, email, role, passwordHash string) (*session.Account, error)
}

// Repository handles account rows in Postgres
type Repository struct {
	db database.Service
}

// NewRepository creates a new account repository
func NewRepository(db database.Service) *Repository {
	return &Repository{db: db}
}

// FindByEmail looks an account up case-insensitively
func (r *Repository) FindByEmail(ctx context.Context, email string) (*session.Account, error) {
	query := `SELECT id, email, role, password_hash FROM accounts WHERE LOWER(email) = LOWER($1)`

	var acc session.Account
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(&acc.ID, &acc.Email, &acc.Role, &acc.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &acc, nil
}

// Create inserts an account. role must parse as a session.Role.
func (r *Repository) Create(ctx context.Context, email, role, passwordHash string) (*session.Account, error) {
	if _, ok := session.ParseRole(role); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	query := `
		INSERT INTO accounts (email, role, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, role, password_hash
	`

	var acc session.Account
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(email), role, passwordHash).Scan(&acc.ID, &acc.Email, &acc.Role, &acc.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &acc, nil
}
