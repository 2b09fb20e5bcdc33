package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"stopboard.dev/gtfs/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves departures over HTTP, refreshing the schedule in the background",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := a.manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("schedule manager stopped", "error", err)
		}
	}()

	server := api.NewServer(a.engine, a.board, api.Options{
		StopIDTemplate: a.cfg.Server.StopIDTemplate,
		DefaultCount:   a.cfg.Server.DefaultCount,
		BoardInterval:  a.cfg.Server.BoardInterval,
	}, a.logger)

	srv := &http.Server{
		Addr:        a.cfg.Server.Addr,
		Handler:     server.Handler(),
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Second,
		ErrorLog:    slog.NewLogLogger(a.logger.Handler(), slog.LevelError),
	}
	srv.RegisterOnShutdown(server.Close)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
