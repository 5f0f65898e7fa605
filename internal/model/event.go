package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the wallet domain event type carried on the bus.
type Kind string

const (
	KindNewCopayer         Kind = "NewCopayer"
	KindWalletComplete     Kind = "WalletComplete"
	KindNewIncomingTx      Kind = "NewIncomingTx"
	KindNewOutgoingTx      Kind = "NewOutgoingTx"
	KindTxProposalCreated  Kind = "NewTxProposal"
	KindTxProposalRejected Kind = "TxProposalFinallyRejected"
	KindTxProposalAccepted Kind = "TxProposalFinallyAccepted"
	KindTxConfirmation     Kind = "TxConfirmation"
)

var knownKinds = map[Kind]struct{}{
	KindNewCopayer:         {},
	KindWalletComplete:     {},
	KindNewIncomingTx:      {},
	KindNewOutgoingTx:      {},
	KindTxProposalCreated:  {},
	KindTxProposalRejected: {},
	KindTxProposalAccepted: {},
	KindTxConfirmation:     {},
}

func (k Kind) String() string { return string(k) }

// Known reports whether consumers handle this kind; unknown kinds are ignored, not rejected.
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// ParseKind matches case-insensitively against the known kinds.
// Returns (kind, true) if known; otherwise ("", false).
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(s)
	for k := range knownKinds {
		if strings.EqualFold(string(k), s) {
			return k, true
		}
	}
	return "", false
}

// Payload is the kind-specific part of an event. Amount is in base units
// (satoshis, wei, token base units).
type Payload struct {
	TxID         string          `json:"txid,omitempty"`
	Address      string          `json:"address,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	TokenAddress string          `json:"tokenAddress,omitempty"`
	ProposalID   string          `json:"txProposalId,omitempty"`
}

// Event is the bus message published by the wallet core.
type Event struct {
	ID        string    `json:"id"` // ULID assigned on publish
	Kind      Kind      `json:"type"`
	WalletID  string    `json:"walletId"`
	CreatorID string    `json:"creatorId,omitempty"`
	CreatedOn time.Time `json:"createdOn"`
	Data      Payload   `json:"data"`
}

// Identity is stable across redeliveries of the same logical event and keys both the
// delivery lock and the outbox record.
func (e Event) Identity() string {
	ref := e.Data.ProposalID
	if ref == "" {
		ref = e.Data.TxID
	}
	if ref == "" {
		ref = e.ID
	}
	return fmt.Sprintf("%s:%s:%s", e.Kind, e.WalletID, ref)
}

// IsToken reports whether the amount is denominated in a token rather than the chain coin.
func (e Event) IsToken() bool { return strings.TrimSpace(e.Data.TokenAddress) != "" }

// Encode returns the wire form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a bus payload. Unknown kinds decode without error.
func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
