package model

import "strings"

// Wallet is the subset of wallet state the notification pipeline reads.
type Wallet struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	M       int    `db:"m"` // required signatures
	N       int    `db:"n"` // total copayers
	Chain   string `db:"chain"`
	Network string `db:"network"` // livenet|testnet
}

// Coin returns the lowercase chain code, defaulting to btc.
func (w Wallet) Coin() string {
	c := strings.ToLower(strings.TrimSpace(w.Chain))
	if c == "" {
		return "btc"
	}
	return c
}
