package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisEntry is the stored session. Account details are loaded on lookup.
type redisEntry struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (e redisEntry) session() Session {
	return Session{
		Token:     e.Token,
		AccountID: e.AccountID,
		ExpiresAt: e.ExpiresAt,
		CreatedAt: e.CreatedAt,
	}
}

// RedisStore keeps sessions as JSON values with a TTL equal to their remaining
// lifetime. Accounts stay in the relational store.
type RedisStore struct {
	client   *redis.Client
	accounts AccountReader
	prefix   string
}

// NewRedisStore creates a Redis-backed session store that resolves accounts through accounts
func NewRedisStore(client *redis.Client, accounts AccountReader) *RedisStore {
	return &RedisStore{
		client:   client,
		accounts: accounts,
		prefix:   "session:",
	}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) get(ctx context.Context, token string) (*redisEntry, error) {
	val, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return &entry, nil
}

// Active reports whether the key exists and the stored session is still active at now.
func (s *RedisStore) Active(ctx context.Context, token string, now time.Time) (bool, error) {
	entry, err := s.get(ctx, token)
	if err != nil || entry == nil {
		return false, err
	}
	return entry.session().StateAt(now) == StateActive, nil
}

// Lookup returns the session with its account as it is now. The account is nil
// when it was deleted after the session started.
func (s *RedisStore) Lookup(ctx context.Context, token string, now time.Time) (*Record, error) {
	entry, err := s.get(ctx, token)
	if err != nil || entry == nil {
		return nil, err
	}

	rec := &Record{Session: entry.session()}
	if rec.Session.StateAt(now) != StateActive {
		return nil, nil
	}
	if entry.AccountID == "" {
		return rec, nil
	}

	acc, err := s.accounts.AccountByID(ctx, entry.AccountID)
	if err != nil {
		return nil, err
	}
	rec.Account = acc
	return rec, nil
}

// Create stores the session under its token.
func (s *RedisStore) Create(ctx context.Context, sess Session, account Account) error {
	if sess.Token == "" || account.ID == "" {
		return fmt.Errorf("%w: missing token or account id", ErrInvalidSession)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: expires_at must be in the future", ErrInvalidSession)
	}

	data, err := json.Marshal(redisEntry{
		Token:     sess.Token,
		AccountID: account.ID,
		ExpiresAt: sess.ExpiresAt,
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sess.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete removes the session key
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// PurgeExpired is a no-op: Redis evicts keys when their TTL runs out.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Ping reports whether Redis answers
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
