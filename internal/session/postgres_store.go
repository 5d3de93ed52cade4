package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"memorialqr/internal/database"
)

// PostgresStore keeps sessions in the sessions table
type PostgresStore struct {
	db database.Service
}

// NewPostgresStore creates a Postgres-backed session store
func NewPostgresStore(db database.Service) *PostgresStore {
	return &PostgresStore{db: db}
}

// Active runs the coarse existence and expiry check without touching accounts.
func (s *PostgresStore) Active(ctx context.Context, token string, now time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sessions WHERE token = $1 AND expires_at > $2)`

	var exists bool
	if err := s.db.QueryRow(ctx, query, token, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}

// Lookup loads the session and its account in one query.
func (s *PostgresStore) Lookup(ctx context.Context, token string, now time.Time) (*Record, error) {
	query := `
		SELECT s.token, s.account_id, s.expires_at, s.created_at, a.id, a.email, a.role
		FROM sessions s
		LEFT JOIN accounts a ON a.id = s.account_id
		WHERE s.token = $1 AND s.expires_at > $2
	`

	var rec Record
	var accountID, email, role sql.NullString
	err := s.db.QueryRow(ctx, query, token, now).Scan(
		&rec.Session.Token,
		&rec.Session.AccountID,
		&rec.Session.ExpiresAt,
		&rec.Session.CreatedAt,
		&accountID,
		&email,
		&role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if accountID.Valid {
		rec.Account = &Account{
			ID:    accountID.String,
			Email: email.String,
			Role:  role.String,
		}
	}

	return &rec, nil
}

// AccountByID loads the account row, or nil when it no longer exists.
func (s *PostgresStore) AccountByID(ctx context.Context, id string) (*Account, error) {
	var acc Account
	err := s.db.QueryRow(ctx, `SELECT id, email, role FROM accounts WHERE id = $1`, id).Scan(&acc.ID, &acc.Email, &acc.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &acc, nil
}

// Create inserts a session row. The account must already exist.
func (s *PostgresStore) Create(ctx context.Context, sess Session, account Account) error {
	if sess.Token == "" || account.ID == "" {
		return fmt.Errorf("%w: missing token or account id", ErrInvalidSession)
	}

	query := `INSERT INTO sessions (token, account_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, query, sess.Token, account.ID, sess.ExpiresAt, sess.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Delete removes a session row
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// PurgeExpired deletes every session that ended before now
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// Ping reports whether the database answers
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
