/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hrease/apiserver/config"
	"github.com/hrease/apiserver/internal/logging"
	"github.com/hrease/apiserver/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const archiveCloseTimeout = 10 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hrease",
	Short: "HRease backend: credentials, sessions and password reset",
	Long: `HRease backend API server and operational commands.

	hrease server
	hrease migrate up
	hrease createuser --email admin@example.com --superuser
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it until
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newLogger builds the process logger and, when configured, tees it into the
// object storage log archive. The returned func flushes everything.
func newLogger(ctx context.Context, cfg config.Config) (*zap.Logger, func(), error) {
	base, err := logging.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	objects, err := storage.Open(ctx, cfg.LogArchive)
	if err != nil {
		base.Warn("log archive disabled", zap.Error(err))
		return base, func() { _ = base.Sync() }, nil
	}
	if objects == nil {
		return base, func() { _ = base.Sync() }, nil
	}

	archive := logging.NewArchiveWriter(objects, logging.ArchiveOptions{
		Prefix:        cfg.LogArchive.Prefix,
		FlushInterval: cfg.LogArchive.FlushInterval,
		BatchSize:     cfg.LogArchive.BatchSize,
	}, base)
	logger := logging.Tee(base, cfg, archive)
	logger.Info("log archive enabled",
		zap.String("backend", cfg.LogArchive.Backend),
		zap.String("bucket", objects.Bucket()),
	)

	return logger, func() {
		_ = logger.Sync()
		closeCtx, cancel := context.WithTimeout(context.Background(), archiveCloseTimeout)
		defer cancel()
		if err := archive.Close(closeCtx); err != nil {
			base.Warn("log archive close", zap.Error(err))
		}
	}, nil
}
