package model

// TokenDescriptor describes a token contract on a chain.
type TokenDescriptor struct {
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}
