package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

var notificationNS = uuid.MustParse("6f1c0a52-4b8e-4c55-9d43-0e7f2b1c9a10")

// NotificationID derives the outbox id for (event identity, recipient address). Every
// consumer instance computes the same id for the same pair.
func NotificationID(identity, email string) string {
	return uuid.NewSHA1(notificationNS, []byte(identity+"|"+email)).String()
}

// RenderedNotification is a per-recipient message plus its outbox state.
type RenderedNotification struct {
	ID        string         `db:"id"         json:"id"`
	EventID   string         `db:"event_id"   json:"eventId"`
	Kind      Kind           `db:"kind"       json:"kind"`
	WalletID  string         `db:"wallet_id"  json:"walletId"`
	CopayerID string         `db:"copayer_id" json:"copayerId"`
	To        string         `db:"to_address"   json:"to"`
	From      string         `db:"from_address" json:"from"`
	Subject   string         `db:"subject"    json:"subject"`
	Text      string         `db:"body_text"  json:"text"`
	HTML      string         `db:"body_html"  json:"html,omitempty"`
	Sent      bool           `db:"sent"       json:"sent"`
	SentOn    sql.NullTime   `db:"sent_on"    json:"-"`
	Attempts  int            `db:"attempts"   json:"attempts"`
	LastError sql.NullString `db:"last_error" json:"-"`
	CreatedOn time.Time      `db:"created_on" json:"createdOn"`
}

// Message is the transport-facing view of n.
func (n RenderedNotification) Message() MailMessage {
	return MailMessage{To: n.To, From: n.From, Subject: n.Subject, Text: n.Text, HTML: n.HTML}
}

// MailMessage is what a mail transport sends.
type MailMessage struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}
