package util

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lowercases and trims an address, dropping any display name.
// Returns "" when the input is not a usable address.
func NormalizeEmail(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}

	return strings.ToLower(addr.Address)
}
