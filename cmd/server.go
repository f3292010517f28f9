/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hrease/apiserver/config"
	"github.com/hrease/apiserver/internal/server"
	"github.com/hrease/apiserver/internal/tracing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var shutdownTimeout time.Duration

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the HRease backend server",
	Long: `Starts the HRease backend server. Usage:

	hrease server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()

		logger, flush, err := newLogger(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer flush()

		shutdownTracing, err := tracing.Init(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to init tracing", zap.Error(err))
			return err
		}

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to start server", zap.Error(err))
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err = <-errCh:
			if err != nil {
				logger.Error("server error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("shutdown incomplete", zap.Error(serr))
		}
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			logger.Warn("tracing shutdown", zap.Error(terr))
		}
		logger.Info("server stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second,
		"how long to wait for in-flight requests and queued notifications")
}
