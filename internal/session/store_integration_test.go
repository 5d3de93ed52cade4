package session

import (
	"context"
	"testing"
	"time"

	"memorialqr/internal/config"
	"memorialqr/internal/database"
	"memorialqr/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) database.Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("memorial"),
		postgres.WithUsername("memorial"),
		postgres.WithPassword("memorial"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, config.Database{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPostgresStore(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	store := NewPostgresStore(db)

	var accountID string
	err := db.QueryRow(ctx,
		`INSERT INTO accounts (email, role, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		"familia@example.com", "owner", "x",
	).Scan(&accountID)
	require.NoError(t, err)
	account := Account{ID: accountID, Email: "familia@example.com", Role: "owner"}

	now := time.Now().UTC().Truncate(time.Microsecond)
	sess := Session{Token: "tok-live", AccountID: accountID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Create(ctx, sess, account))

	active, err := store.Active(ctx, "tok-live", now)
	require.NoError(t, err)
	require.True(t, active)

	acc, err := store.AccountByID(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, &account, acc)

	rec, err := store.Lookup(ctx, "tok-live", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Account)
	require.Equal(t, accountID, rec.Account.ID)
	require.Equal(t, "owner", rec.Account.Role)
	require.True(t, sess.ExpiresAt.Equal(rec.Session.ExpiresAt))

	// Past its expiry the row is invisible to both checks.
	active, err = store.Active(ctx, "tok-live", now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, active)
	rec, err = store.Lookup(ctx, "tok-live", now.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, rec)

	rec, err = store.Lookup(ctx, "missing", now)
	require.NoError(t, err)
	require.Nil(t, rec)

	// Orphaned session: account row removed underneath it.
	_, err = db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	require.NoError(t, err)
	rec, err = store.Lookup(ctx, "tok-live", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Nil(t, rec.Account)

	acc, err = store.AccountByID(ctx, accountID)
	require.NoError(t, err)
	require.Nil(t, acc)

	n, err := store.PurgeExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.ErrorIs(t, store.Delete(ctx, "tok-live"), ErrSessionNotFound)
	require.NoError(t, store.Ping(ctx))
}

type memAccounts map[string]Account

func (m memAccounts) AccountByID(ctx context.Context, id string) (*Account, error) {
	acc, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func TestRedisStore(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	account := Account{ID: "acc-9", Email: "staff@example.com", Role: "admin"}
	accounts := memAccounts{account.ID: account}
	store := NewRedisStore(client, accounts)

	now := time.Now()
	sess := Session{Token: "tok-r", AccountID: account.ID, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, store.Create(ctx, sess, account))

	active, err := store.Active(ctx, "tok-r", now)
	require.NoError(t, err)
	require.True(t, active)

	rec, err := store.Lookup(ctx, "tok-r", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "admin", rec.Account.Role)

	// Role changes are visible to sessions started before them.
	accounts[account.ID] = Account{ID: account.ID, Email: account.Email, Role: "owner"}
	rec, err = store.Lookup(ctx, "tok-r", now)
	require.NoError(t, err)
	require.Equal(t, "owner", rec.Account.Role)

	// Orphaned session: the account is gone but the key is still live.
	delete(accounts, account.ID)
	rec, err = store.Lookup(ctx, "tok-r", now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Nil(t, rec.Account)

	active, err = store.Active(ctx, "tok-r", now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, active)
	rec, err = store.Lookup(ctx, "tok-r", now.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, store.Delete(ctx, "tok-r"))
	rec, err = store.Lookup(ctx, "tok-r", now)
	require.NoError(t, err)
	require.Nil(t, rec)

	require.Error(t, store.Create(ctx, Session{Token: "old", ExpiresAt: now.Add(-time.Second)}, account))
	require.NoError(t, store.Ping(ctx))
}

func TestRedisStore_OrphanDeniedByResolver(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	accounts := memAccounts{"acc-1": {ID: "acc-1", Email: "familia@example.com", Role: "owner"}}
	store := NewRedisStore(client, accounts)

	now := time.Now()
	sess := Session{Token: "tok-o", AccountID: "acc-1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, store.Create(ctx, sess, accounts["acc-1"]))

	resolver := NewResolver(store, CookieOptions{Name: "memorial_session"}, logger.Discard())
	require.NotNil(t, resolver.ResolveToken(ctx, "tok-o"))

	delete(accounts, "acc-1")
	require.Nil(t, resolver.ResolveToken(ctx, "tok-o"))
}
