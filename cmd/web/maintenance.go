package main

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"memorialqr/internal/auth"
	"memorialqr/internal/config"
	"memorialqr/internal/database"
	"memorialqr/internal/session"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the accounts and sessions tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			slog.Info("Schema is up to date")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions",
		Long: `Delete expired sessions from the session store.

Expired sessions are already ignored by every lookup; this only reclaims space.
With the Redis backend keys expire on their own and nothing is deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			n, err := sweep(ctx, st, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
			return nil
		},
	}
}

func sweep(ctx context.Context, st *stores, cfg config.Config) (int64, error) {
	n, err := session.NewManager(st.sessions, cfg.Session.Lifetime).Sweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	if n > 0 {
		slog.Info("Expired sessions purged", "count", n)
	}
	return n, nil
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	var email, password, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Example: `  memorialqr account add --email staff@example.com --password '...' --role admin
  memorialqr account add --email familia@example.com --password '...' --role owner`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			svc := auth.NewService(
				auth.NewRepository(st.db),
				session.NewManager(st.sessions, cfg.Session.Lifetime),
				log,
			)
			acc, err := svc.Register(ctx, email, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s (%s)\n", acc.Role, acc.Email, acc.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "Account email")
	add.Flags().StringVar(&password, "password", "", "Account password (at least 8 characters)")
	add.Flags().StringVar(&role, "role", "owner", "Account role: admin or owner")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}

			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", date)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
