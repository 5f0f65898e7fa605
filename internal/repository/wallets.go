package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmoiron/sqlx"
)

// WalletsRepository reads wallet metadata owned by the wallet core.
type WalletsRepository interface {
	// Get returns (nil, nil) when the wallet does not exist.
	Get(ctx context.Context, id string) (*model.Wallet, error)
	Upsert(ctx context.Context, w model.Wallet) error
}

type WalletsRepositoryImpl struct {
	db *sqlx.DB
}

var _ WalletsRepository = (*WalletsRepositoryImpl)(nil)

func NewWalletsRepository(db *sqlx.DB) *WalletsRepositoryImpl {
	return &WalletsRepositoryImpl{db: db}
}

func (r *WalletsRepositoryImpl) Get(ctx context.Context, id string) (*model.Wallet, error) {
	const q = `SELECT id, name, m, n, chain, network FROM wallets WHERE id = ?`

	var w model.Wallet
	if err := r.db.GetContext(ctx, &w, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (r *WalletsRepositoryImpl) Upsert(ctx context.Context, w model.Wallet) error {
	const q = `
		INSERT INTO wallets (id, name, m, n, chain, network)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), m = VALUES(m), n = VALUES(n),
			chain = VALUES(chain), network = VALUES(network)
	`
	_, err := r.db.ExecContext(ctx, q, w.ID, w.Name, w.M, w.N, w.Chain, w.Network)
	return err
}
