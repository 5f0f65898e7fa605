package cmd

import (
	"fmt"

	"github.com/jmehdipour/wallet-notifier/internal/db"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL tables (and the ClickHouse table when configured)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.L()

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolFromConfig(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer sqlDB.Close()

		if err := apply(sqlDB, migrations.MySQL); err != nil {
			return err
		}
		log.Info("mysql migration complete", zap.String("file", migrations.MySQL))

		if cfg.ClickHouse.DSN == "" {
			return nil
		}
		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.PoolFromConfig(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()

		if err := apply(chDB, migrations.ClickHouse); err != nil {
			return err
		}
		log.Info("clickhouse migration complete", zap.String("file", migrations.ClickHouse))
		return nil
	},
}

func apply(dbx *sqlx.DB, file string) error {
	stmts, err := migrations.Statements(file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	for i, s := range stmts {
		if _, err := dbx.Exec(s); err != nil {
			return fmt.Errorf("exec %s statement %d: %w", file, i+1, err)
		}
	}
	return nil
}
