// Package render builds the localized, per-recipient message for an event.
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/tokens"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var (
	// ErrNoTemplate means neither the recipient's language nor the default has a template.
	ErrNoTemplate = errors.New("no template for kind")
	// ErrUnsupportedToken means the event's token is not in the registry.
	ErrUnsupportedToken = errors.New("unsupported token")
)

// IsDrop reports whether err means "do not notify" rather than a failure.
func IsDrop(err error) bool {
	return errors.Is(err, ErrNoTemplate) || errors.Is(err, ErrUnsupportedToken)
}

type Config struct {
	From            string
	SubjectPrefix   string
	DefaultLanguage string
	// TxURLTemplates maps chain → network → mustache template over {{txid}}.
	TxURLTemplates map[string]map[string]string
}

type Renderer struct {
	src     TemplateSource
	tokens  tokens.Registry
	cfg     Config
	langs   []string
	matcher language.Matcher
	log     *zap.Logger
}

func New(src TemplateSource, reg tokens.Registry, cfg Config, log *zap.Logger) *Renderer {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}

	// default first: the matcher falls back to index 0
	langs := []string{cfg.DefaultLanguage}
	for _, l := range src.Languages() {
		if l != cfg.DefaultLanguage {
			langs = append(langs, l)
		}
	}
	tags := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		tags = append(tags, language.Make(l))
	}

	return &Renderer{
		src:     src,
		tokens:  reg,
		cfg:     cfg,
		langs:   langs,
		matcher: language.NewMatcher(tags),
		log:     logger.Or(log),
	}
}

// Language maps a preference to an available template language.
func (r *Renderer) Language(pref string) string {
	tag, err := language.Parse(pref)
	if err != nil {
		return r.cfg.DefaultLanguage
	}
	_, idx, conf := r.matcher.Match(tag)
	if conf == language.No {
		r.log.Debug("unsupported language, using default", zap.String("language", pref))
		return r.cfg.DefaultLanguage
	}
	return r.langs[idx]
}

func (r *Renderer) templates(kind model.Kind, lang string) (TemplateSet, error) {
	set, ok := r.src.Lookup(kind, lang)
	if !ok && lang != r.cfg.DefaultLanguage {
		set, ok = r.src.Lookup(kind, r.cfg.DefaultLanguage)
	}
	if !ok || strings.TrimSpace(set.Subject) == "" || strings.TrimSpace(set.Text) == "" {
		return TemplateSet{}, fmt.Errorf("%w: %s/%s", ErrNoTemplate, kind, lang)
	}
	return set, nil
}

// TxURL renders the explorer link for txid, or "" when the chain/network has none.
func (r *Renderer) TxURL(chain, network, txid string) string {
	tpl := r.cfg.TxURLTemplates[chain][network]
	if tpl == "" || txid == "" {
		return ""
	}
	out, err := mustache.Render(tpl, map[string]string{"txid": txid})
	if err != nil {
		r.log.Warn("bad tx url template", zap.String("chain", chain), zap.String("network", network), zap.Error(err))
		return ""
	}
	return out
}

// Render produces the message for one recipient. It has no side effects: equal inputs give
// equal output. CreatedOn is left for the caller to stamp.
func (r *Renderer) Render(ctx context.Context, ev model.Event, w model.Wallet, p model.CopayerPreference) (*model.RenderedNotification, error) {
	chain := w.Coin()

	var token *model.TokenDescriptor
	if ev.IsToken() {
		d, ok, err := r.tokens.Lookup(ctx, chain, ev.Data.TokenAddress)
		if err != nil {
			return nil, fmt.Errorf("token lookup: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedToken, ev.Data.TokenAddress, chain)
		}
		token = &d
	}

	set, err := r.templates(ev.Kind, r.Language(p.Language))
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"walletId":   w.ID,
		"walletName": w.Name,
		"walletM":    strconv.Itoa(w.M),
		"walletN":    strconv.Itoa(w.N),
		"coin":       strings.ToUpper(chain),
		"network":    w.Network,
		"amount":     FormatAmount(ev.Data.Amount, chain, p.Unit, token),
		"txid":       ev.Data.TxID,
		"address":    ev.Data.Address,
		"proposalId": ev.Data.ProposalID,
		"creatorId":  ev.CreatorID,
		"urlForTx":   r.TxURL(chain, w.Network, ev.Data.TxID),
	}

	subject, err := mustache.Render(set.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	text, err := mustache.Render(set.Text, data)
	if err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	var html string
	if set.HTML != "" {
		if html, err = mustache.Render(set.HTML, data); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
	}

	identity := ev.Identity()
	return &model.RenderedNotification{
		ID:        model.NotificationID(identity, p.Email),
		EventID:   identity,
		Kind:      ev.Kind,
		WalletID:  w.ID,
		CopayerID: p.CopayerID,
		To:        p.Email,
		From:      r.cfg.From,
		Subject:   r.cfg.SubjectPrefix + strings.TrimSpace(subject),
		Text:      text,
		HTML:      html,
	}, nil
}
