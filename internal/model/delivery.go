package model

import "time"

type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeUnsent     Outcome = "unsent"
	OutcomeLockDenied Outcome = "lock_denied"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeDropped    Outcome = "dropped"
	OutcomeError      Outcome = "error"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSent, OutcomeUnsent, OutcomeLockDenied, OutcomeDuplicate, OutcomeDropped, OutcomeError:
		return true
	}
	return false
}

// DeliveryReport is one per-recipient outcome row in the analytics store.
type DeliveryReport struct {
	NotificationID string    `db:"notification_id" json:"notificationId"`
	EventID        string    `db:"event_id"        json:"eventId"`
	Kind           string    `db:"kind"            json:"kind"`
	WalletID       string    `db:"wallet_id"       json:"walletId"`
	To             string    `db:"to_address"      json:"to"`
	Outcome        string    `db:"outcome"         json:"outcome"`
	Error          string    `db:"error"           json:"error,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"createdAt"`
}
