package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/itstheanurag/snipexec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP execution server",
	Long: `Start the HTTP server.

Endpoints:
  POST /execute    {"language", "code", "stdin", "reply"}
  GET  /languages
  GET  /health
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	conf, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, conf, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Start(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return <-done
}
