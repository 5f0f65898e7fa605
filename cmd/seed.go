package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/db"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo wallets and copayer preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.L()

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolFromConfig(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		wallets := repository.NewWalletsRepository(sqlDB)
		prefs := repository.NewPreferencesRepository(sqlDB)

		for _, d := range demoWallets() {
			if err := wallets.Upsert(ctx, d.wallet); err != nil {
				return fmt.Errorf("upsert wallet %s: %w", d.wallet.ID, err)
			}
			// nil tx: the repository opens and commits its own
			if err := prefs.ReplaceForWallet(ctx, nil, d.wallet.ID, d.prefs); err != nil {
				return fmt.Errorf("preferences %s: %w", d.wallet.ID, err)
			}
			log.Info("seeded wallet", zap.String("wallet_id", d.wallet.ID), zap.Int("copayers", len(d.prefs)))
		}

		return nil
	},
}

type demoWallet struct {
	wallet model.Wallet
	prefs  []model.CopayerPreference
}

// demoWallets covers a shared address, a spanish/bits copayer, an eth token wallet and a
// single-signer wallet.
func demoWallets() []demoWallet {
	return []demoWallet{
		{
			wallet: model.Wallet{ID: "demo-family", Name: "Family savings", M: 2, N: 3, Chain: "btc", Network: "livenet"},
			prefs: []model.CopayerPreference{
				{CopayerID: "copayer-1", Email: "alice@example.com", Language: "en", Unit: model.UnitBTC},
				{CopayerID: "copayer-2", Email: "Alice@Example.com", Language: "en", Unit: model.UnitBTC},
				{CopayerID: "copayer-3", Email: "bruno@example.com", Language: "es", Unit: model.UnitBit},
			},
		},
		{
			wallet: model.Wallet{ID: "demo-treasury", Name: "Treasury", M: 2, N: 2, Chain: "eth", Network: "livenet"},
			prefs: []model.CopayerPreference{
				{CopayerID: "copayer-4", Email: "cfo@example.com"},
				{CopayerID: "copayer-5", Email: "ops@example.com", OptOut: model.KindList{model.KindTxConfirmation}},
			},
		},
		{
			wallet: model.Wallet{ID: "demo-solo", Name: "Personal", M: 1, N: 1, Chain: "btc", Network: "testnet"},
			prefs: []model.CopayerPreference{
				{CopayerID: "copayer-6", Email: "solo@example.com"},
			},
		},
	}
}
