package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/broker"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/util"
)

var ErrInvalidEvent = errors.New("invalid event")

// Service validates wallet events and puts them on the bus.
type Service struct {
	bus broker.MessageBroker
	now func() time.Time
}

func New(bus broker.MessageBroker) *Service {
	return &Service{bus: bus, now: time.Now}
}

// Validate checks the fields each kind needs to be delivered.
func Validate(ev model.Event) error {
	if !ev.Kind.Known() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Kind)
	}
	if strings.TrimSpace(ev.WalletID) == "" {
		return fmt.Errorf("%w: walletId is required", ErrInvalidEvent)
	}
	switch ev.Kind {
	case model.KindNewIncomingTx, model.KindNewOutgoingTx, model.KindTxConfirmation:
		if strings.TrimSpace(ev.Data.TxID) == "" {
			return fmt.Errorf("%w: data.txid is required for %s", ErrInvalidEvent, ev.Kind)
		}
		if ev.Data.Amount.IsNegative() {
			return fmt.Errorf("%w: data.amount must not be negative", ErrInvalidEvent)
		}
	case model.KindTxProposalCreated, model.KindTxProposalRejected, model.KindTxProposalAccepted:
		if strings.TrimSpace(ev.Data.ProposalID) == "" {
			return fmt.Errorf("%w: data.txProposalId is required for %s", ErrInvalidEvent, ev.Kind)
		}
	}
	return nil
}

// Publish stamps ev with an id and creation time when missing, then publishes it.
// Returns the event as published.
func (s *Service) Publish(ctx context.Context, ev model.Event) (model.Event, error) {
	if k, ok := model.ParseKind(ev.Kind.String()); ok {
		ev.Kind = k
	}
	if err := Validate(ev); err != nil {
		return model.Event{}, err
	}

	now := s.now().UTC()
	if ev.CreatedOn.IsZero() {
		ev.CreatedOn = now
	}
	if ev.ID == "" {
		ev.ID = util.NewIDAt(now)
	}

	payload, err := ev.Encode()
	if err != nil {
		return model.Event{}, err
	}
	if err := s.bus.Publish(ctx, payload); err != nil {
		return model.Event{}, fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	return ev, nil
}
