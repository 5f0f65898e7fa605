package tokens

import (
	"context"
	"testing"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLookupIsCaseInsensitive(t *testing.T) {
	r := NewStatic([]model.TokenDescriptor{
		{Chain: "ETH", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6},
		{Chain: "sol", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: 6},
	})
	require.Equal(t, 2, r.Len())

	ctx := context.Background()
	tok, ok, err := r.Lookup(ctx, "eth", "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.EqualValues(t, 6, tok.Decimals)

	_, ok, _ = r.Lookup(ctx, "sol", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	assert.True(t, ok)

	_, ok, _ = r.Lookup(ctx, "eth", "0x0000000000000000000000000000000000000001")
	assert.False(t, ok)

	_, ok, _ = r.Lookup(ctx, "matic", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	assert.False(t, ok)
}
