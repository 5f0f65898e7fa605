package render

import (
	"context"
	"strings"
	"testing"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/tokens"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = model.TokenDescriptor{Chain: "eth", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6}
	bat  = model.TokenDescriptor{Chain: "eth", Address: "0x0d8775f648430679a709e98d2b0cb6250d2887ef", Symbol: "BAT", Decimals: 18}
)

func newRenderer(t *testing.T, prefix string) *Renderer {
	t.Helper()
	return New(DefaultTemplates(), tokens.NewStatic([]model.TokenDescriptor{usdc, bat}), Config{
		From:            "wallet@example.com",
		SubjectPrefix:   prefix,
		DefaultLanguage: "en",
		TxURLTemplates: map[string]map[string]string{
			"btc": {"livenet": "https://insight.bitpay.com/tx/{{txid}}"},
			"eth": {"livenet": "https://etherscan.io/tx/{{txid}}?chain=1&x=2"},
		},
	}, nil)
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		chain  string
		unit   model.Unit
		token  *model.TokenDescriptor
		want   string
	}{
		{"bits small", "13000", "btc", model.UnitBit, nil, "130 bits"},
		{"bits grouped", "12300000", "btc", model.UnitBit, nil, "123,000 bits"},
		{"bits large", "80000000", "btc", model.UnitBit, nil, "800,000 bits"},
		{"btc", "12300000", "btc", model.UnitBTC, nil, "0.123 BTC"},
		{"btc min decimals", "100000000", "btc", model.UnitBTC, nil, "1.00 BTC"},
		{"btc grouped", "123456700000000", "btc", model.UnitBTC, nil, "1,234,567.00 BTC"},
		{"bch", "221340", "bch", model.UnitBTC, nil, "0.002213 BCH"},
		{"bch ignores bit", "221340", "bch", model.UnitBit, nil, "0.002213 BCH"},
		{"eth", "1500000000000000000", "eth", model.UnitBTC, nil, "1.50 ETH"},
		{"usdc", "4000000", "eth", model.UnitBTC, &usdc, "4.00 USDC"},
		{"bat 18 decimals", "4000000000000000000", "eth", model.UnitBit, &bat, "4.00 BAT"},
		{"unknown chain", "250000000", "xyz", model.UnitBTC, nil, "2.50 XYZ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatAmount(decimal.RequireFromString(tc.amount), tc.chain, tc.unit, tc.token)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "0", groupThousands("0"))
	assert.Equal(t, "999", groupThousands("999"))
	assert.Equal(t, "1,000", groupThousands("1000"))
	assert.Equal(t, "12,345,678", groupThousands("12345678"))
}

func incoming(chain string) (model.Event, model.Wallet) {
	ev := model.Event{
		ID:       "01H",
		Kind:     model.KindNewIncomingTx,
		WalletID: "w1",
		Data:     model.Payload{TxID: "999", Address: "mx1", Amount: decimal.RequireFromString("12300000")},
	}
	w := model.Wallet{ID: "w1", Name: "Family", M: 2, N: 3, Chain: chain, Network: "livenet"}
	return ev, w
}

func TestRenderIncomingEnglish(t *testing.T) {
	r := newRenderer(t, "[test wallet] ")
	ev, w := incoming("btc")

	n, err := r.Render(context.Background(), ev, w, model.CopayerPreference{CopayerID: "c1", Email: "a@b.com", Language: "en", Unit: model.UnitBTC})
	require.NoError(t, err)

	assert.Equal(t, "[test wallet] New payment received", n.Subject)
	assert.Contains(t, n.Text, "0.123 BTC")
	assert.Contains(t, n.Text, "https://insight.bitpay.com/tx/999")
	assert.Contains(t, n.HTML, `<a href="https://insight.bitpay.com/tx/999">`)
	assert.Equal(t, "a@b.com", n.To)
	assert.Equal(t, "wallet@example.com", n.From)
	assert.Equal(t, "NewIncomingTx:w1:999", n.EventID)
	assert.Equal(t, model.NotificationID("NewIncomingTx:w1:999", "a@b.com"), n.ID)
}

func TestRenderLocaleFallback(t *testing.T) {
	r := newRenderer(t, "")
	ev, w := incoming("btc")
	ctx := context.Background()

	es, err := r.Render(ctx, ev, w, model.CopayerPreference{Email: "a@b.com", Language: "es", Unit: model.UnitBit})
	require.NoError(t, err)
	assert.Equal(t, "Nuevo pago recibido", es.Subject)
	assert.Contains(t, es.Text, "123,000 bits")

	esAR, err := r.Render(ctx, ev, w, model.CopayerPreference{Email: "a@b.com", Language: "es-AR"})
	require.NoError(t, err)
	assert.Equal(t, "Nuevo pago recibido", esAR.Subject)

	for _, lang := range []string{"fr", "", "not a tag!"} {
		n, err := r.Render(ctx, ev, w, model.CopayerPreference{Email: "a@b.com", Language: lang})
		require.NoError(t, err)
		assert.Equal(t, "New payment received", n.Subject, "language %q", lang)
	}

	// kind without a Spanish template falls back to English for that kind only
	acc := ev
	acc.Kind = model.KindTxProposalAccepted
	n, err := r.Render(ctx, acc, w, model.CopayerPreference{Email: "a@b.com", Language: "es"})
	require.NoError(t, err)
	assert.Equal(t, "Payment proposal accepted", n.Subject)
}

func TestRenderTokens(t *testing.T) {
	r := newRenderer(t, "")
	ev, w := incoming("eth")
	ctx := context.Background()

	ev.Data.TokenAddress = "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"
	ev.Data.Amount = decimal.RequireFromString("4000000")
	n, err := r.Render(ctx, ev, w, model.CopayerPreference{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Contains(t, n.Text, "4.00 USDC")
	assert.Contains(t, n.Text, "https://etherscan.io/tx/999?chain=1&x=2")

	ev.Data.TokenAddress = "0x0000000000000000000000000000000000000bad"
	_, err = r.Render(ctx, ev, w, model.CopayerPreference{Email: "a@b.com"})
	require.ErrorIs(t, err, ErrUnsupportedToken)
	assert.True(t, IsDrop(err))
}

func TestRenderMissingTxURLAndHTML(t *testing.T) {
	r := newRenderer(t, "")
	ev, w := incoming("btc")
	w.Network = "testnet"

	n, err := r.Render(context.Background(), ev, w, model.CopayerPreference{Email: "a@b.com"})
	require.NoError(t, err)
	assert.NotContains(t, n.Text, "See the transaction")
	assert.Equal(t, "", r.TxURL("btc", "testnet", "999"))
	assert.Equal(t, "", r.TxURL("btc", "livenet", ""))

	prop := ev
	prop.Kind = model.KindTxProposalCreated
	prop.Data.ProposalID = "p1"
	n, err = r.Render(context.Background(), prop, w, model.CopayerPreference{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Empty(t, n.HTML)
	assert.Contains(t, n.Text, "2 of 3 signatures")
}

func TestRenderEscapesValues(t *testing.T) {
	r := newRenderer(t, "")
	ev, w := incoming("btc")
	w.Name = "Tom & Jerry"

	n, err := r.Render(context.Background(), ev, w, model.CopayerPreference{Email: "a@b.com"})
	require.NoError(t, err)
	assert.Contains(t, n.HTML, "Tom &amp; Jerry")
}

func TestRenderIsPure(t *testing.T) {
	r := newRenderer(t, "[x] ")
	ev, w := incoming("btc")
	p := model.CopayerPreference{CopayerID: "c1", Email: "a@b.com", Language: "es", Unit: model.UnitBit}

	a, err := r.Render(context.Background(), ev, w, p)
	require.NoError(t, err)
	b, err := r.Render(context.Background(), ev, w, p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRenderNoTemplate(t *testing.T) {
	src, err := LoadTemplates(strings.NewReader(`
en:
  NewIncomingTx:
    subject: "only subject"
`))
	require.NoError(t, err)
	r := New(src, tokens.NewStatic(nil), Config{DefaultLanguage: "en"}, nil)
	ev, w := incoming("btc")

	_, err = r.Render(context.Background(), ev, w, model.CopayerPreference{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrNoTemplate)

	ev.Kind = model.KindTxConfirmation
	_, err = r.Render(context.Background(), ev, w, model.CopayerPreference{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestLoadTemplatesRejectsUnknownKind(t *testing.T) {
	_, err := LoadTemplates(strings.NewReader("en:\n  Bogus:\n    subject: x\n    text: y\n"))
	assert.Error(t, err)
}

func TestDefaultTemplateLanguages(t *testing.T) {
	assert.Equal(t, []string{"en", "es"}, DefaultTemplates().Languages())
}
