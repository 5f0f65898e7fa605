package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/wneessen/go-mail"
)

type SMTPOptions struct {
	Host          string
	Port          int
	Username      string
	Password      string
	TLS           bool
	TimeoutMs     int
	FailThreshold int
	OpenForMs     int
}

// SMTPProvider relays through an SMTP server; one connection per message.
type SMTPProvider struct {
	name   string
	client *mail.Client
	br     *MicroBreaker
}

var _ Provider = (*SMTPProvider)(nil)

func NewSMTPProvider(name string, o SMTPOptions) (*SMTPProvider, error) {
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 10000
	}
	if o.OpenForMs <= 0 {
		o.OpenForMs = 15000
	}

	opts := []mail.Option{
		mail.WithPort(o.Port),
		mail.WithTimeout(time.Duration(o.TimeoutMs) * time.Millisecond),
	}
	if o.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if o.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(o.Username),
			mail.WithPassword(o.Password),
		)
	}

	c, err := mail.NewClient(o.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client %s: %w", name, err)
	}

	return &SMTPProvider{
		name:   name,
		client: c,
		br:     NewMicroBreaker(o.FailThreshold, time.Duration(o.OpenForMs)*time.Millisecond),
	}, nil
}

func (p *SMTPProvider) Name() string  { return p.name }
func (p *SMTPProvider) Ready() bool   { return p.br.Ready() }
func (p *SMTPProvider) Acquire() bool { return p.br.TryAcquire() }

func (p *SMTPProvider) Send(ctx context.Context, msg model.MailMessage) error {
	m, err := buildMsg(msg)
	if err != nil {
		// a malformed address is not the server's fault
		return err
	}
	if err := p.client.DialAndSendWithContext(ctx, m); err != nil {
		p.br.OnFailure()
		return fmt.Errorf("provider=%s: %w", p.name, err)
	}

	p.br.OnSuccess()

	return nil
}

func buildMsg(msg model.MailMessage) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
