package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	httpserver "github.com/fyrsmithlabs/taskd/internal/http"
	"github.com/fyrsmithlabs/taskd/internal/notes"
	"github.com/fyrsmithlabs/taskd/internal/store"
)

func newServeCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the taskd HTTP API. When notes.sweep_enabled is set, notes saved through
POST /api/v1/notes are processed in the background on notes.sweep_interval.

Examples:
  # Start with the default config file
  taskd serve

  # Override the port through the environment
  TASKD_SERVER_HTTP_PORT=8080 taskd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload provider settings when the config file changes")
	return cmd
}

// noteStore keeps notes in the task database when it is SQLite, so saved
// notes survive a restart.
func noteStore(ctx context.Context, st store.Store) (notes.Store, error) {
	if sq, ok := st.(*store.SQLiteStore); ok {
		return notes.NewSQLiteSource(ctx, sq.DB())
	}
	return notes.NewMemorySource(), nil
}

// runServe starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func runServe(ctx context.Context, cfg *config.Config, watch bool) error {
	a, err := newApp(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	zl := a.logger.Underlying()

	if err := a.queue.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load pending tasks: %w", err)
	}

	source, err := noteStore(ctx, a.store)
	if err != nil {
		return err
	}
	if cfg.Notes.SweepEnabled {
		sweeper, err := notes.NewSweeper(source, a.orch.NoteProcessor(), cfg.Notes.SweepInterval.Duration(), a.logger)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start note sweeper: %w", err)
		}
		defer func() { _ = sweeper.Stop() }()
	}

	if watch {
		startWatcher(ctx, a)
	}

	srv, err := httpserver.NewServer(httpserver.Services{
		Extractor: a.orch,
		Queue:     a.queue,
		Tasks:     a.store,
		Notes:     source,
		Metrics:   httpserver.NewHTTPMetrics(a.telemetry.Meter(httpScope), zl),
	}, zl, &httpserver.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	zl.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Bool("note_sweep", cfg.Notes.SweepEnabled))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	zl.Info("Server shutdown complete")
	return nil
}

// startWatcher reloads provider settings on config file changes. A missing
// config directory disables watching.
func startWatcher(ctx context.Context, a *app) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return
		}
		path = p
	}

	w, err := config.NewWatcher(path, func(next *config.Config) {
		a.reload(ctx, next)
	}, a.logger.Underlying())
	if err != nil {
		a.logger.Warn(ctx, "config watching disabled", zap.Error(err))
		return
	}
	go w.Run(ctx)
}
