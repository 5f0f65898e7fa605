package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSOptions struct {
	URL           string
	Name          string
	Subject       string
	ReconnectWait time.Duration
}

// NATS uses core (non-persistent) publish/subscribe, which already has hub semantics:
// every connected subscriber gets each message and nothing is kept for absent ones.
type NATS struct {
	nc      *nats.Conn
	subject string
	subs    *handlerSet
	log     *zap.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

var _ MessageBroker = (*NATS)(nil)

func NewNATS(opts NATSOptions, log *zap.Logger) (*NATS, error) {
	log = logger.Or(log)
	wait := opts.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Warn("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &NATS{
		nc:      nc,
		subject: opts.Subject,
		subs:    newHandlerSet("nats", log),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (b *NATS) Publish(_ context.Context, payload []byte) error {
	if err := b.nc.Publish(b.subject, payload); err != nil {
		b.log.Warn("nats publish failed", zap.String("subject", b.subject), zap.Error(err))
		return fmt.Errorf("nats publish: %w", err)
	}
	metrics.BusMessagesTotal.WithLabelValues("published", "nats").Inc()
	return nil
}

func (b *NATS) Subscribe(h Handler) (func(), error) {
	unsub := b.subs.add(h)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return unsub, nil
	}

	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		b.subs.dispatch(b.ctx, m.Data)
	})
	if err != nil {
		unsub()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub
	return unsub, nil
}

func (b *NATS) Close() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	b.cancel()
	b.nc.Close()
	return nil
}
