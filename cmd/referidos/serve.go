package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/referidos/internal/database"
	"github.com/dukerupert/referidos/internal/directus"
	"github.com/dukerupert/referidos/internal/metrics"
	"github.com/dukerupert/referidos/internal/server"
	"github.com/dukerupert/referidos/internal/vault"
)

const cleanupInterval = time.Minute

func serveCmd(g *globalFlags) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, port string) error {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}

	db, err := database.Open(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	secret := cfg.Server.Secret
	if secret == "" {
		secret, err = vault.GenerateSecret()
		if err != nil {
			return err
		}
		logger.Warn("server.secret not set; sessions will not survive a restart")
	}
	sealer, err := vault.NewSealer(secret)
	if err != nil {
		return err
	}

	m := metrics.New()
	srv, err := server.New(server.Options{
		Config:  cfg,
		DB:      db,
		API:     directus.New(cfg.Directus, m, logger.With("component", "directus")),
		Metrics: m,
		Sealer:  sealer,
		CSRFKey: vault.DeriveKey(secret, vault.PurposeCSRF),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runCleanup(ctx, srv)

	httpServer := srv.HTTPServer(":" + cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("referidos running",
			"url", "http://localhost:"+cfg.Server.Port,
			"directus", cfg.Directus.URL,
			"collection", cfg.Directus.Collection,
			"version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runCleanup(ctx context.Context, srv *server.Server) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	srv.Cleanup()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.Cleanup()
		}
	}
}

