/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hrease/apiserver/config"
	"github.com/hrease/apiserver/internal/mq"
	"github.com/hrease/apiserver/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect the outbound notification channel",
}

// notificationsWatchCmd consumes the notification channel and logs each
// message. Consumed messages are acknowledged, so do not run it next to the mailer.
var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Consume and log notifications until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()

		logger, flush, err := newLogger(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer flush()

		broker, err := mq.Open(ctx, cfg.Notify, logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		logger.Info("watching notifications",
			zap.String("backend", broker.Name()),
			zap.String("channel", cfg.Notify.Channel),
		)
		err = broker.Subscribe(ctx, cfg.Notify.Channel, func(_ context.Context, msg mq.Message) error {
			logNotification(logger, msg)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func logNotification(logger *zap.Logger, msg mq.Message) {
	kind := msg.Attributes["kind"]
	if kind != notify.KindPasswordReset {
		logger.Info("notification", zap.String("id", msg.ID), zap.String("kind", kind), zap.Int("bytes", len(msg.Data)))
		return
	}

	var reset notify.PasswordReset
	if err := json.Unmarshal(msg.Data, &reset); err != nil {
		logger.Warn("undecodable password reset notification", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	logger.Info("password reset notification",
		zap.String("id", msg.ID),
		zap.String("to", reset.To),
		zap.Time("expires_at", reset.ExpiresAt),
	)
	logger.Debug("password reset link", zap.String("id", msg.ID), zap.String("reset_url", reset.ResetURL))
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
}
