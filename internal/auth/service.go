// Package auth implements password login and logout on top of the session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"memorialqr/internal/session"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountNotFound is returned when no account has the email
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailExists is returned when the email is already registered
	ErrEmailExists = errors.New("email already registered")
	// ErrInvalidRole is returned for a role outside admin/owner
	ErrInvalidRole = errors.New("invalid role")
)

// dummyHash is compared against when the email is unknown.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("memorialqr-dummy-password"), bcrypt.DefaultCost)

// Service defines the authentication operations
type Service interface {
	Login(ctx context.Context, email, password string) (*Login, error)
	Logout(ctx context.Context, token string) error
	Register(ctx context.Context, email, password, role string) (*session.Account, error)
}

// Login is a successful authentication
type Login struct {
	Session session.Session
	Account session.Identity
}

type service struct {
	accounts AccountRepository
	sessions session.Manager
	logger   *slog.Logger
}

// NewService creates a new authentication service
func NewService(accounts AccountRepository, sessions session.Manager, logger *slog.Logger) Service {
	return &service{
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
	}
}

// Login checks the credentials and starts a session.
// Accounts whose stored role is not recognised cannot log in.
func (s *service) Login(ctx context.Context, email, password string) (*Login, error) {
	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	role, ok := session.ParseRole(acc.Role)
	if !ok {
		s.logger.WarnContext(ctx, "Login refused for account with unrecognised role",
			"account_id", acc.ID,
			"role", acc.Role,
		)
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Start(ctx, *acc)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session started", "account_id", acc.ID, "role", role.String())

	return &Login{
		Session: sess,
		Account: session.Identity{ID: acc.ID, Email: acc.Email, Role: role},
	}, nil
}

// Logout ends the session. A missing session is not an error.
func (s *service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.End(ctx, token); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Register creates an account with a bcrypt hash of password
func (s *service) Register(ctx context.Context, email, password, role string) (*session.Account, error) {
	if _, ok := session.ParseRole(role); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.accounts.Create(ctx, email, role, string(hash))
}
