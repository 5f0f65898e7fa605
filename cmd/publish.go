package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/bootstrap"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/service/publisher"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var publishFlags struct {
	kind, walletID, creatorID string
	txid, address, amount     string
	token, proposalID         string
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish one wallet event onto the bus",
	Example: `  wallet-notifier publish --type NewIncomingTx --wallet demo-family --txid abc --amount 12300000
  wallet-notifier publish --type NewTxProposal --wallet demo-family --creator copayer-1 --proposal p1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.L()

		kind, ok := model.ParseKind(publishFlags.kind)
		if !ok {
			return fmt.Errorf("unknown event type %q", publishFlags.kind)
		}
		ev := model.Event{
			Kind:      kind,
			WalletID:  publishFlags.walletID,
			CreatorID: publishFlags.creatorID,
			Data: model.Payload{
				TxID:         publishFlags.txid,
				Address:      publishFlags.address,
				TokenAddress: publishFlags.token,
				ProposalID:   publishFlags.proposalID,
			},
		}
		if publishFlags.amount != "" {
			amt, err := decimal.NewFromString(publishFlags.amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			ev.Data.Amount = amt
		}

		if cfg.Broker.Mode == "local" {
			log.Warn("broker.mode=local: the event stays inside this process and reaches no consumer")
		}

		app, err := bootstrap.NewBus(cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		out, err := publisher.New(app.Broker).Publish(ctx, ev)
		if err != nil {
			return err
		}
		log.Info("event published", zap.String("id", out.ID), zap.String("event_id", out.Identity()))
		fmt.Fprintln(cmd.OutOrStdout(), out.ID)
		return nil
	},
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&publishFlags.kind, "type", "", "event type, e.g. NewIncomingTx")
	f.StringVar(&publishFlags.walletID, "wallet", "", "wallet id")
	f.StringVar(&publishFlags.creatorID, "creator", "", "copayer id of the actor")
	f.StringVar(&publishFlags.txid, "txid", "", "transaction id")
	f.StringVar(&publishFlags.address, "address", "", "receiving address")
	f.StringVar(&publishFlags.amount, "amount", "", "amount in base units (satoshis, wei, token units)")
	f.StringVar(&publishFlags.token, "token", "", "token contract address")
	f.StringVar(&publishFlags.proposalID, "proposal", "", "transaction proposal id")
	_ = publishCmd.MarkFlagRequired("type")
	_ = publishCmd.MarkFlagRequired("wallet")
}
