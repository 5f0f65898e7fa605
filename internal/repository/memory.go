package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmoiron/sqlx"
)

// In-memory repositories back storage.driver=memory and the pipeline tests. They are safe
// for concurrent use and share nothing across processes.

type MemoryWallets struct {
	mu      sync.RWMutex
	wallets map[string]model.Wallet
}

var _ WalletsRepository = (*MemoryWallets)(nil)

func NewMemoryWallets() *MemoryWallets {
	return &MemoryWallets{wallets: make(map[string]model.Wallet)}
}

func (m *MemoryWallets) Get(_ context.Context, id string) (*model.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *MemoryWallets) Upsert(_ context.Context, w model.Wallet) error {
	m.mu.Lock()
	m.wallets[w.ID] = w
	m.mu.Unlock()
	return nil
}

type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string][]model.CopayerPreference
}

var _ PreferencesRepository = (*MemoryPreferences)(nil)

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string][]model.CopayerPreference)}
}

func (m *MemoryPreferences) ListByWallet(_ context.Context, walletID string) ([]model.CopayerPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CopayerPreference, len(m.prefs[walletID]))
	copy(out, m.prefs[walletID])
	return out, nil
}

func (m *MemoryPreferences) ReplaceForWallet(_ context.Context, _ *sqlx.Tx, walletID string, prefs []model.CopayerPreference) error {
	cp := make([]model.CopayerPreference, len(prefs))
	copy(cp, prefs)
	for i := range cp {
		cp[i].WalletID = walletID
	}
	m.mu.Lock()
	m.prefs[walletID] = cp
	m.mu.Unlock()
	return nil
}

type MemoryOutbox struct {
	mu     sync.RWMutex
	emails map[string]model.RenderedNotification
	now    func() time.Time
}

var _ OutboxRepository = (*MemoryOutbox)(nil)

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{emails: make(map[string]model.RenderedNotification), now: time.Now}
}

func (m *MemoryOutbox) Record(_ context.Context, n *model.RenderedNotification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[n.ID]; ok {
		return false, nil
	}
	cp := *n
	cp.Sent, cp.Attempts = false, 0
	cp.SentOn, cp.LastError = sql.NullTime{}, sql.NullString{}
	m.emails[n.ID] = cp
	return true, nil
}

func (m *MemoryOutbox) Get(_ context.Context, id string) (*model.RenderedNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.emails[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (m *MemoryOutbox) MarkSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.emails[id]
	if !ok || n.Sent {
		return nil
	}
	n.Sent = true
	n.SentOn = sql.NullTime{Time: m.now(), Valid: true}
	n.Attempts++
	n.LastError = sql.NullString{}
	m.emails[id] = n
	return nil
}

func (m *MemoryOutbox) RecordFailure(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.emails[id]
	if !ok || n.Sent {
		return nil
	}
	n.Attempts++
	n.LastError = sql.NullString{String: reason, Valid: true}
	m.emails[id] = n
	return nil
}

func (m *MemoryOutbox) ListUnsent(_ context.Context, limit int) ([]model.RenderedNotification, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	m.mu.RLock()
	out := make([]model.RenderedNotification, 0, len(m.emails))
	for _, n := range m.emails {
		if !n.Sent {
			out = append(out, n)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every record; tests use it to count sends per address.
func (m *MemoryOutbox) All() []model.RenderedNotification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.RenderedNotification, 0, len(m.emails))
	for _, n := range m.emails {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
