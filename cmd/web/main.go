package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"memorialqr/internal/config"
	"memorialqr/internal/database"
	"memorialqr/internal/logger"
	"memorialqr/internal/session"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memorialqr",
		Short: "MemorialQR web server and maintenance commands",
		Long: `MemorialQR serves the memorial site and its session-backed login.

Configuration is read from the environment (and a .env file when present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		sweepCmd(),
		accountCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger
func setup() (config.Config, *slog.Logger, error) {
	log := logger.New()
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, log, nil
}

// stores holds the open backends. close releases all of them.
type stores struct {
	db       database.Service
	sessions session.Store
	redis    *redis.Client
}

func (s *stores) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("Failed to close Redis client", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// openStores connects to Postgres and, when selected, Redis. Accounts always
// live in Postgres; sessions live in the configured backend.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s := &stores{db: db}

	switch cfg.Session.Backend {
	case config.BackendRedis:
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := session.NewRedisStore(s.redis, session.NewPostgresStore(db))
		if err := store.Ping(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.sessions = store
	default:
		s.sessions = session.NewPostgresStore(db)
	}

	slog.Info("Stores ready", "session_backend", cfg.Session.Backend)
	return s, nil
}
