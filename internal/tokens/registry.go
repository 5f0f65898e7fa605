// Package tokens resolves token contract addresses to display metadata.
package tokens

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmehdipour/wallet-notifier/internal/model"
)

// Registry may be backed by a remote service, hence the context.
type Registry interface {
	Lookup(ctx context.Context, chain, address string) (model.TokenDescriptor, bool, error)
}

// Static is a Registry over a fixed token list.
type Static struct {
	byKey map[string]model.TokenDescriptor
}

var _ Registry = (*Static)(nil)

func NewStatic(list []model.TokenDescriptor) *Static {
	s := &Static{byKey: make(map[string]model.TokenDescriptor, len(list))}
	for _, t := range list {
		t.Chain = strings.ToLower(strings.TrimSpace(t.Chain))
		t.Address = canonical(t.Address)
		s.byKey[key(t.Chain, t.Address)] = t
	}
	return s
}

func (s *Static) Lookup(_ context.Context, chain, address string) (model.TokenDescriptor, bool, error) {
	t, ok := s.byKey[key(strings.ToLower(strings.TrimSpace(chain)), canonical(address))]
	return t, ok, nil
}

func (s *Static) Len() int { return len(s.byKey) }

// canonical maps EVM hex addresses to their checksummed form, so lookups are case-insensitive.
// Other address formats are kept as trimmed input.
func canonical(addr string) string {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

func key(chain, addr string) string { return chain + "|" + addr }
