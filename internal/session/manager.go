package session

import (
	"context"
	"fmt"
	"time"
)

// Manager owns the write side: starting and ending sessions.
type Manager interface {
	Start(ctx context.Context, account Account) (Session, error)
	End(ctx context.Context, token string) error
	Sweep(ctx context.Context) (int64, error)
}

type manager struct {
	store    Writer
	lifetime time.Duration
	now      func() time.Time
}

// NewManager creates a session manager issuing sessions of the given lifetime
func NewManager(store Writer, lifetime time.Duration) Manager {
	return &manager{
		store:    store,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Start creates a session for account and returns it
func (m *manager) Start(ctx context.Context, account Account) (Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}

	now := m.now()
	sess := Session{
		Token:     token,
		AccountID: account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}

	if err := m.store.Create(ctx, sess, account); err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	return sess, nil
}

// End deletes the session for token
func (m *manager) End(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

// Sweep removes sessions that have already expired
func (m *manager) Sweep(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.now())
}
