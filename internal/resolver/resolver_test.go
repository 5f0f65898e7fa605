package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, w model.Wallet, prefs ...model.CopayerPreference) *Resolver {
	t.Helper()
	ctx := context.Background()
	wallets := repository.NewMemoryWallets()
	require.NoError(t, wallets.Upsert(ctx, w))
	pr := repository.NewMemoryPreferences()
	require.NoError(t, pr.ReplaceForWallet(ctx, nil, w.ID, prefs))

	return New(wallets, pr, Config{
		DefaultLanguage:        "en",
		MinSignersForProposals: 2,
		SingleSignerSuppress:   []model.Kind{model.KindTxProposalCreated, model.KindTxProposalRejected},
	}, nil)
}

func emails(prefs []model.CopayerPreference) []string {
	out := make([]string, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, p.Email)
	}
	return out
}

var twoOfThree = model.Wallet{ID: "w1", Name: "Family", M: 2, N: 3, Chain: "btc", Network: "livenet"}

func TestResolveFiltersAndNormalizes(t *testing.T) {
	r := fixture(t, twoOfThree,
		model.CopayerPreference{CopayerID: "c1", Email: " A@B.com ", Language: "ES", Unit: "bit"},
		model.CopayerPreference{CopayerID: "c2"},
		model.CopayerPreference{CopayerID: "c3", Email: "c@b.com", OptOut: model.KindList{model.KindNewIncomingTx}},
	)

	w, prefs, err := r.Resolve(context.Background(), model.Event{Kind: model.KindNewIncomingTx, WalletID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, "w1", w.ID)
	require.Len(t, prefs, 1)
	assert.Equal(t, "a@b.com", prefs[0].Email)
	assert.Equal(t, "es", prefs[0].Language)
	assert.Equal(t, model.UnitBit, prefs[0].Unit)
}

func TestResolveDefaultsLanguageAndUnit(t *testing.T) {
	r := fixture(t, twoOfThree, model.CopayerPreference{CopayerID: "c1", Email: "a@b.com", Unit: "weird"})

	_, prefs, err := r.Resolve(context.Background(), model.Event{Kind: model.KindNewIncomingTx, WalletID: "w1"})
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, "en", prefs[0].Language)
	assert.Equal(t, model.UnitBTC, prefs[0].Unit)
}

func TestResolveAudienceRules(t *testing.T) {
	r := fixture(t, twoOfThree,
		model.CopayerPreference{CopayerID: "c1", Email: "a@b.com"},
		model.CopayerPreference{CopayerID: "c2", Email: "b@b.com"},
		model.CopayerPreference{CopayerID: "c3", Email: "c@b.com"},
	)
	ctx := context.Background()

	cases := []struct {
		kind model.Kind
		want []string
	}{
		{model.KindTxProposalCreated, []string{"b@b.com", "c@b.com"}},
		{model.KindTxProposalRejected, []string{"b@b.com", "c@b.com"}},
		{model.KindNewCopayer, []string{"b@b.com", "c@b.com"}},
		{model.KindNewOutgoingTx, []string{"a@b.com", "b@b.com", "c@b.com"}},
		{model.KindWalletComplete, []string{"a@b.com", "b@b.com", "c@b.com"}},
		{model.KindTxConfirmation, []string{"a@b.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			_, prefs, err := r.Resolve(ctx, model.Event{Kind: tc.kind, WalletID: "w1", CreatorID: "c1"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, emails(prefs))
		})
	}

	// a confirmation nobody subscribed to goes nowhere
	_, prefs, err := r.Resolve(ctx, model.Event{Kind: model.KindTxConfirmation, WalletID: "w1"})
	require.NoError(t, err)
	assert.Empty(t, prefs)
}

func TestResolveSingleSignerSuppression(t *testing.T) {
	oneOfOne := model.Wallet{ID: "w1", M: 1, N: 1, Chain: "btc", Network: "livenet"}
	r := fixture(t, oneOfOne, model.CopayerPreference{CopayerID: "c1", Email: "a@b.com"})
	ctx := context.Background()

	_, prefs, err := r.Resolve(ctx, model.Event{Kind: model.KindTxProposalCreated, WalletID: "w1", CreatorID: "other"})
	require.NoError(t, err)
	assert.Empty(t, prefs)

	_, prefs, err = r.Resolve(ctx, model.Event{Kind: model.KindTxProposalRejected, WalletID: "w1", CreatorID: "other"})
	require.NoError(t, err)
	assert.Empty(t, prefs)

	_, prefs, err = r.Resolve(ctx, model.Event{Kind: model.KindNewIncomingTx, WalletID: "w1"})
	require.NoError(t, err)
	assert.Len(t, prefs, 1)
}

func TestResolveUnknownKindAndWallet(t *testing.T) {
	r := fixture(t, twoOfThree, model.CopayerPreference{CopayerID: "c1", Email: "a@b.com"})
	ctx := context.Background()

	w, prefs, err := r.Resolve(ctx, model.Event{Kind: "Mystery", WalletID: "w1"})
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Empty(t, prefs)

	_, _, err = r.Resolve(ctx, model.Event{Kind: model.KindNewIncomingTx, WalletID: "missing"})
	assert.True(t, errors.Is(err, ErrWalletNotFound))
}

func TestDedupByAddress(t *testing.T) {
	in := []model.CopayerPreference{
		{CopayerID: "c1", Email: "shared@b.com", Language: "es"},
		{CopayerID: "c2", Email: "shared@b.com", Language: "en"},
		{CopayerID: "c3", Email: "solo@b.com"},
	}
	out := DedupByAddress(in)
	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].CopayerID)
	assert.Equal(t, "c3", out[1].CopayerID)
}
