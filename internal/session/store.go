// Package session reads and writes login sessions and resolves them to principals.
// Sessions are rows in Postgres or keys in Redis; both backends expose the same
// single-round-trip lookups.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned by writers when the token has no row
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSession is returned when session data cannot be decoded or stored
	ErrInvalidSession = errors.New("invalid session")
)

// Reader is the read side used on every protected request.
type Reader interface {
	// Active reports whether a session with token exists and is unexpired at now.
	Active(ctx context.Context, token string, now time.Time) (bool, error)
	// Lookup returns the unexpired session for token joined with its account,
	// or nil when there is none.
	Lookup(ctx context.Context, token string, now time.Time) (*Record, error)
}

// Writer is the write side used by login, logout and the sweeper.
type Writer interface {
	Create(ctx context.Context, sess Session, account Account) error
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store is a full session backend
type Store interface {
	Reader
	Writer
	Ping(ctx context.Context) error
}

// AccountReader loads the current state of an account. A missing account is
// reported as nil, nil.
type AccountReader interface {
	AccountByID(ctx context.Context, id string) (*Account, error)
}
