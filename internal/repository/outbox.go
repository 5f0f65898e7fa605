package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxRepository persists every rendered notification before it is sent, so a failed
// send stays discoverable as unsent.
type OutboxRepository interface {
	// Record inserts n unless a record with the same id exists. created is false when it did.
	Record(ctx context.Context, n *model.RenderedNotification) (created bool, err error)
	// Get returns (nil, nil) when id is unknown.
	Get(ctx context.Context, id string) (*model.RenderedNotification, error)
	MarkSent(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id, reason string) error
	// ListUnsent returns the oldest unsent records first.
	ListUnsent(ctx context.Context, limit int) ([]model.RenderedNotification, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation over the emails table.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

const emailColumns = `id, event_id, kind, wallet_id, copayer_id, to_address, from_address,
	subject, body_text, body_html, sent, sent_on, attempts, last_error, created_on`

func (r *OutboxRepositoryImpl) Record(ctx context.Context, n *model.RenderedNotification) (bool, error) {
	const q = `
		INSERT IGNORE INTO emails
			(id, event_id, kind, wallet_id, copayer_id, to_address, from_address,
			 subject, body_text, body_html, sent, attempts, created_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
	`
	res, err := r.db.ExecContext(ctx, q,
		n.ID, n.EventID, n.Kind.String(), n.WalletID, n.CopayerID, n.To, n.From,
		n.Subject, n.Text, n.HTML, n.CreatedOn,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *OutboxRepositoryImpl) Get(ctx context.Context, id string) (*model.RenderedNotification, error) {
	q := `SELECT ` + emailColumns + ` FROM emails WHERE id = ?`

	var n model.RenderedNotification
	if err := r.db.GetContext(ctx, &n, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (r *OutboxRepositoryImpl) MarkSent(ctx context.Context, id string) error {
	const q = `
		UPDATE emails
		SET sent = 1, sent_on = NOW(), attempts = attempts + 1, last_error = NULL
		WHERE id = ? AND sent = 0
	`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *OutboxRepositoryImpl) RecordFailure(ctx context.Context, id, reason string) error {
	const q = `
		UPDATE emails
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ? AND sent = 0
	`
	if len(reason) > 1024 {
		reason = reason[:1024]
	}
	_, err := r.db.ExecContext(ctx, q, reason, id)
	return err
}

func (r *OutboxRepositoryImpl) ListUnsent(ctx context.Context, limit int) ([]model.RenderedNotification, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT ` + emailColumns + ` FROM emails WHERE sent = 0 ORDER BY created_on ASC, id ASC LIMIT ?`

	var rows []model.RenderedNotification
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
