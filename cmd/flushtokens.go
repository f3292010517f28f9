/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/hrease/apiserver/config"
	"github.com/hrease/apiserver/internal/db"
	"github.com/hrease/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// flushTokensCmd purges blacklist rows whose refresh token has expired anyway.
var flushTokensCmd = &cobra.Command{
	Use:   "flush-tokens",
	Short: "Delete expired entries from the refresh token blacklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()

		logger, flush, err := newLogger(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer flush()

		if cfg.Blacklist.Backend == "redis" {
			logger.Info("redis blacklist entries expire on their own; nothing to flush")
			return nil
		}

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		deleted, err := store.NewTokenBlacklistRepository(dbConn).DeleteExpired(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("flush blacklist: %w", err)
		}
		logger.Info("expired blacklist entries deleted", zap.Int64("deleted", deleted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flushTokensCmd)
}
