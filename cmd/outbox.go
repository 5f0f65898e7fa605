package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/bootstrap"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and retry unsent notifications",
}

var unsentLimit int

var outboxUnsentCmd = &cobra.Command{
	Use:   "unsent",
	Short: "List unsent notifications, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := bootstrap.New(cfg, logger.L())
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rows, err := app.Outbox.ListUnsent(ctx, unsentLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, n := range rows {
			if err := enc.Encode(map[string]any{
				"id":        n.ID,
				"eventId":   n.EventID,
				"kind":      n.Kind,
				"to":        n.To,
				"attempts":  n.Attempts,
				"lastError": n.LastError.String,
				"createdOn": n.CreatedOn,
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

var outboxResendCmd = &cobra.Command{
	Use:   "resend <id>",
	Short: "Retry one unsent notification with its stored content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := bootstrap.New(cfg, logger.L())
		if err != nil {
			return err
		}
		defer app.Close()

		svc, err := app.EmailService(nil)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Lock.TTL)
		defer cancel()

		outcome, err := svc.Resend(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resend %s (%s): %w", args[0], outcome, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], outcome)
		return nil
	},
}

func init() {
	outboxUnsentCmd.Flags().IntVar(&unsentLimit, "limit", 100, "max rows")
	outboxCmd.AddCommand(outboxUnsentCmd)
	outboxCmd.AddCommand(outboxResendCmd)
}
