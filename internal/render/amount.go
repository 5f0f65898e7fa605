package render

import (
	"strings"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/shopspring/decimal"
)

// unitSpec converts base units to a display unit: divide by 10^exp, show between
// minDecimals and maxDecimals fraction digits.
type unitSpec struct {
	exp         int32
	maxDecimals int32
	minDecimals int32
	label       string
}

var coinUnits = map[string]unitSpec{
	"btc":   {exp: 8, maxDecimals: 6, minDecimals: 2, label: "BTC"},
	"bch":   {exp: 8, maxDecimals: 6, minDecimals: 2, label: "BCH"},
	"ltc":   {exp: 8, maxDecimals: 6, minDecimals: 2, label: "LTC"},
	"doge":  {exp: 8, maxDecimals: 6, minDecimals: 2, label: "DOGE"},
	"eth":   {exp: 18, maxDecimals: 6, minDecimals: 2, label: "ETH"},
	"matic": {exp: 18, maxDecimals: 6, minDecimals: 2, label: "MATIC"},
	"xrp":   {exp: 6, maxDecimals: 6, minDecimals: 2, label: "XRP"},
	"sol":   {exp: 9, maxDecimals: 6, minDecimals: 2, label: "SOL"},
}

var bitUnit = unitSpec{exp: 2, maxDecimals: 0, minDecimals: 0, label: "bits"}

// unitFor picks the display unit. The bit preference only applies to btc wallets.
func unitFor(chain string, pref model.Unit, token *model.TokenDescriptor) unitSpec {
	if token != nil {
		max := token.Decimals
		if max > 6 {
			max = 6
		}
		min := int32(2)
		if min > max {
			min = max
		}
		return unitSpec{exp: token.Decimals, maxDecimals: max, minDecimals: min, label: token.Symbol}
	}
	if chain == "btc" && pref == model.UnitBit {
		return bitUnit
	}
	if u, ok := coinUnits[chain]; ok {
		return u
	}
	return unitSpec{exp: 8, maxDecimals: 6, minDecimals: 2, label: strings.ToUpper(chain)}
}

// FormatAmount renders a base-unit amount with its unit label, e.g. "123,000 bits" or "0.123 BTC".
func FormatAmount(amount decimal.Decimal, chain string, pref model.Unit, token *model.TokenDescriptor) string {
	u := unitFor(chain, pref, token)
	return formatNumber(amount.Shift(-u.exp), u.maxDecimals, u.minDecimals) + " " + u.label
}

func formatNumber(v decimal.Decimal, maxDecimals, minDecimals int32) string {
	s := v.StringFixed(maxDecimals)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	for int32(len(frac)) > minDecimals && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}

	out := groupThousands(intPart)
	if frac != "" {
		out += "." + frac
	}
	if neg && strings.Trim(out, "0.,") != "" {
		out = "-" + out
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
