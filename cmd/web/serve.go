package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"memorialqr/internal/auth"
	"memorialqr/internal/config"
	"memorialqr/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var sweepEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			srv, err := server.New(&cfg, server.Deps{
				DB:       st.db,
				Sessions: st.sessions,
				Accounts: auth.NewRepository(st.db),
				Registry: registry,
				Logger:   log,
			})
			if err != nil {
				return err
			}
			httpServer := srv.HTTPServer()

			runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if sweepEvery > 0 && cfg.Session.Backend == config.BackendPostgres {
				go sweepLoop(runCtx, st, cfg, sweepEvery)
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("MemorialQR listening",
					"addr", httpServer.Addr,
					"environment", cfg.Environment,
					"session_backend", cfg.Session.Backend,
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-runCtx.Done():
			}

			slog.Info("Shutting down server")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server forced to shutdown", "error", err)
				return err
			}

			slog.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&sweepEvery, "sweep-every", 0, "Purge expired sessions on this interval (0 disables)")

	return cmd
}

func sweepLoop(ctx context.Context, st *stores, cfg config.Config, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweep(ctx, st, cfg); err != nil {
				slog.Warn("Session sweep failed", "error", err)
			}
		}
	}
}
