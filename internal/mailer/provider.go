package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/model"
)

// Transport sends one message. Implementations must honour ctx cancellation.
type Transport interface {
	Send(ctx context.Context, msg model.MailMessage) error
}

// Provider is one mail backend guarded by its own breaker.
type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, msg model.MailMessage) error
}

// HTTPProvider posts the message as JSON to a transactional mail API.
type HTTPProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
	br     *MicroBreaker
}

var _ Provider = (*HTTPProvider)(nil)

func NewHTTPProvider(name, baseURL, path, apiKey string, timeoutMs, failThreshold, openForMs int) *HTTPProvider {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPProvider{
		name:   name,
		url:    baseURL + path,
		apiKey: apiKey,
		client: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:     NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string  { return p.name }
func (p *HTTPProvider) Ready() bool   { return p.br.Ready() }
func (p *HTTPProvider) Acquire() bool { return p.br.TryAcquire() }

func (p *HTTPProvider) Send(ctx context.Context, msg model.MailMessage) error {
	if err := p.post(ctx, msg); err != nil {
		p.br.OnFailure()
		return err
	}

	p.br.OnSuccess()

	return nil
}

func (p *HTTPProvider) post(ctx context.Context, msg model.MailMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("provider=%s status=%d", p.name, res.StatusCode)
	}

	return nil
}
