package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmehdipour/wallet-notifier/internal/model"
)

var (
	ErrNoHealthy = errors.New("no healthy mail providers")
	ErrNoAcquire = errors.New("mail provider not acquired")
)

// Dispatcher round-robins over ready providers and fails over within a single Send.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

var _ Transport = (*Dispatcher)(nil)

func NewDispatcher(provs []Provider, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 2
	}

	return &Dispatcher{providers: provs, maxAttempts: maxAttempts}
}

func (d *Dispatcher) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, msg model.MailMessage) error {
	p, err := d.selectProvider()
	if err != nil {
		return err
	}

	if !p.Acquire() {
		return ErrNoAcquire
	}

	if err := p.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	return nil
}

func (d *Dispatcher) Send(ctx context.Context, msg model.MailMessage) error {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.tryOnce(ctx, msg); err == nil {
			return nil
		} else {
			last = err
		}
	}

	if last == nil {
		last = errors.New("send failed")
	}

	return last
}
