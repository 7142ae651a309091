package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gateway-reconciler/internal/api"
	"gateway-reconciler/internal/config"
	"gateway-reconciler/internal/database"
	"gateway-reconciler/internal/logger"
	"gateway-reconciler/internal/repo"
	"gateway-reconciler/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the stale transaction worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "create tables before serving")
	return cmd
}

func runServe(autoMigrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if autoMigrate {
		if err := database.Migrate(ctx, db.DB(), db.Dialect()); err != nil {
			return err
		}
	}

	a, err := newApp(cfg, repo.NewSQLStore(db.DB(), db.Dialect()), log)
	if err != nil {
		return err
	}
	defer a.Close()

	go worker.NewStaleWorker(a.store, a.registry, log, cfg.StaleInterval, cfg.StaleAfter).Run(ctx)

	srv := api.NewServer(a.checkout, a.orders, db, log, api.Options{
		AllowedOrigins:       cfg.AllowedOrigins,
		NotificationUser:     cfg.Gateway.NotificationUser,
		NotificationPassword: cfg.Gateway.NotificationPassword,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.gateway.Wait()
	log.Info("Server exiting")
	return nil
}
