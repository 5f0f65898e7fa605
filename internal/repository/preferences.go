package repository

import (
	"context"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmoiron/sqlx"
)

// PreferencesRepository reads per-copayer notification settings.
type PreferencesRepository interface {
	// ListByWallet returns preferences in copayer join order.
	ListByWallet(ctx context.Context, walletID string) ([]model.CopayerPreference, error)
	// ReplaceForWallet swaps the wallet's preference rows. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	ReplaceForWallet(ctx context.Context, tx *sqlx.Tx, walletID string, prefs []model.CopayerPreference) error
}

type PreferencesRepositoryImpl struct {
	db *sqlx.DB
}

var _ PreferencesRepository = (*PreferencesRepositoryImpl)(nil)

func NewPreferencesRepository(db *sqlx.DB) *PreferencesRepositoryImpl {
	return &PreferencesRepositoryImpl{db: db}
}

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *PreferencesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *PreferencesRepositoryImpl) ListByWallet(ctx context.Context, walletID string) ([]model.CopayerPreference, error) {
	const q = `
		SELECT copayer_id, wallet_id, email, language, unit, opt_out
		FROM copayer_preferences
		WHERE wallet_id = ?
		ORDER BY position ASC, copayer_id ASC
	`
	var rows []model.CopayerPreference
	if err := r.db.SelectContext(ctx, &rows, q, walletID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PreferencesRepositoryImpl) ReplaceForWallet(ctx context.Context, tx *sqlx.Tx, walletID string, prefs []model.CopayerPreference) error {
	const del = `DELETE FROM copayer_preferences WHERE wallet_id = ?`
	const ins = `
		INSERT INTO copayer_preferences (copayer_id, wallet_id, position, email, language, unit, opt_out)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, del, walletID); err != nil {
			return err
		}
		for i, p := range prefs {
			optOut, _ := p.OptOut.Value()
			if _, err := tx.ExecContext(ctx, ins, p.CopayerID, walletID, i, p.Email, p.Language, p.Unit.String(), optOut); err != nil {
				return err
			}
		}
		return nil
	})
}
