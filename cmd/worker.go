/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/mq"
	"github.com/libranet/apiserver/internal/services"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume book request events and email patrons",
	Long: `Consume book request events from the configured broker and email
patrons when a request is approved or rejected. Requires MQ_BACKEND. Usage:

	libranet worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx := cmd.Context()

		svc, dbConn, err := openServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()
		defer svc.Close()

		if svc.MQ == nil {
			return errors.New("MQ_BACKEND is required")
		}

		slog.Info("worker consuming", "channel", cfg.MQ.Channel, "backend", cfg.MQ.Backend)
		err = svc.MQ.Subscribe(ctx, cfg.MQ.Channel, eventHandler(svc.Notifications))
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", cfg.MQ.Channel, err)
		}
		return nil
	},
}

// eventHandler decodes book request events and hands them to the
// notification service. Undecodable messages are dropped.
func eventHandler(notifications *services.NotificationService) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		event, err := mq.DecodeBookRequestEvent(msg)
		if err != nil {
			slog.WarnContext(ctx, "dropping malformed event", "message_id", msg.ID, "error", err)
			return nil
		}
		return notifications.HandleEvent(ctx, event)
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
