// Package resolver turns an event into the final list of copayers to notify.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/util"
	"go.uber.org/zap"
)

var ErrWalletNotFound = errors.New("wallet not found")

// audience says whether the copayer who caused the event (doer) and the rest of the
// wallet (others) hear about it.
type audience struct {
	doer   bool
	others bool
}

var audiences = map[model.Kind]audience{
	model.KindNewCopayer:         {doer: false, others: true},
	model.KindWalletComplete:     {doer: true, others: true},
	model.KindTxProposalCreated:  {doer: false, others: true},
	model.KindTxProposalRejected: {doer: false, others: true},
	model.KindTxProposalAccepted: {doer: true, others: true},
	model.KindNewOutgoingTx:      {doer: true, others: true},
	model.KindNewIncomingTx:      {doer: true, others: true},
	model.KindTxConfirmation:     {doer: true, others: false}, // only the subscriber
}

type WalletReader interface {
	Get(ctx context.Context, id string) (*model.Wallet, error)
}

type PreferenceReader interface {
	ListByWallet(ctx context.Context, walletID string) ([]model.CopayerPreference, error)
}

type Config struct {
	DefaultLanguage string
	// Wallets requiring fewer signatures than this get no notification for SingleSignerSuppress kinds.
	MinSignersForProposals int
	SingleSignerSuppress   []model.Kind
}

type Resolver struct {
	wallets WalletReader
	prefs   PreferenceReader
	cfg     Config
	log     *zap.Logger
}

func New(wallets WalletReader, prefs PreferenceReader, cfg Config, log *zap.Logger) *Resolver {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &Resolver{wallets: wallets, prefs: prefs, cfg: cfg, log: logger.Or(log)}
}

func (r *Resolver) suppressed(k model.Kind, w *model.Wallet) bool {
	if w.M >= r.cfg.MinSignersForProposals {
		return false
	}
	for _, s := range r.cfg.SingleSignerSuppress {
		if s == k {
			return true
		}
	}
	return false
}

// Resolve loads the wallet and returns the copayers that should hear about ev, with email,
// language and unit normalised. Shared addresses are not collapsed; see DedupByAddress.
func (r *Resolver) Resolve(ctx context.Context, ev model.Event) (*model.Wallet, []model.CopayerPreference, error) {
	aud, ok := audiences[ev.Kind]
	if !ok {
		return nil, nil, nil
	}

	w, err := r.wallets.Get(ctx, ev.WalletID)
	if err != nil {
		return nil, nil, fmt.Errorf("get wallet %s: %w", ev.WalletID, err)
	}
	if w == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrWalletNotFound, ev.WalletID)
	}

	if r.suppressed(ev.Kind, w) {
		r.log.Debug("kind suppressed for wallet",
			zap.String("kind", ev.Kind.String()), zap.String("wallet_id", w.ID), zap.Int("m", w.M))
		return w, nil, nil
	}

	prefs, err := r.prefs.ListByWallet(ctx, ev.WalletID)
	if err != nil {
		return nil, nil, fmt.Errorf("list preferences %s: %w", ev.WalletID, err)
	}

	out := make([]model.CopayerPreference, 0, len(prefs))
	for _, p := range prefs {
		email := util.NormalizeEmail(p.Email)
		if email == "" {
			continue
		}
		if p.OptOut.Has(ev.Kind) {
			continue
		}
		isDoer := ev.CreatorID != "" && p.CopayerID == ev.CreatorID
		if (isDoer && !aud.doer) || (!isDoer && !aud.others) {
			continue
		}

		p.Email = email
		p.Language = strings.ToLower(strings.TrimSpace(p.Language))
		if p.Language == "" {
			p.Language = r.cfg.DefaultLanguage
		}
		p.Unit, _ = model.ParseUnit(p.Unit.String())
		out = append(out, p)
	}
	return w, out, nil
}

// DedupByAddress keeps the first preference for each email address.
func DedupByAddress(prefs []model.CopayerPreference) []model.CopayerPreference {
	seen := make(map[string]struct{}, len(prefs))
	out := make([]model.CopayerPreference, 0, len(prefs))
	for _, p := range prefs {
		if _, dup := seen[p.Email]; dup {
			continue
		}
		seen[p.Email] = struct{}{}
		out = append(out, p)
	}
	return out
}
