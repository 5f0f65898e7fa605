package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveryReportsRepository stores per-recipient outcomes in ClickHouse for reporting.
type DeliveryReportsRepository interface {
	InsertBatch(ctx context.Context, rows []model.DeliveryReport) error
	ListByWallet(ctx context.Context, walletID string, outcome model.Outcome, limit, offset int) ([]model.DeliveryReport, error)
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveriesRepository(ch *sqlx.DB) DeliveryReportsRepository {
	return &chDeliveriesRepository{ch: ch}
}

// InsertBatch uses the clickhouse-go batch protocol: one prepared INSERT per transaction.
func (r *chDeliveriesRepository) InsertBatch(ctx context.Context, rows []model.DeliveryReport) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wnotif.deliveries
			(notification_id, event_id, kind, wallet_id, to_address, outcome, error, created_at)
	`)
	if err != nil {
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range rows {
		if _, err := stmt.ExecContext(ctx,
			d.NotificationID, d.EventID, d.Kind, d.WalletID, d.To, d.Outcome, d.Error, d.CreatedAt,
		); err != nil {
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}
	return tx.Commit()
}

func (r *chDeliveriesRepository) ListByWallet(ctx context.Context, walletID string, outcome model.Outcome, limit, offset int) ([]model.DeliveryReport, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT notification_id, event_id, kind, wallet_id, to_address, outcome, error, created_at
		FROM wnotif.deliveries
		WHERE wallet_id = ?
	`
	args := []any{walletID}

	if outcome != "" {
		q += " AND outcome = ?"
		args = append(args, outcome.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.DeliveryReport
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
