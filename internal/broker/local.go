package broker

import (
	"context"
	"sync/atomic"

	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"go.uber.org/zap"
)

// Local delivers synchronously to in-process handlers, in registration order.
type Local struct {
	subs   *handlerSet
	closed atomic.Bool
}

var _ MessageBroker = (*Local)(nil)

func NewLocal(log *zap.Logger) *Local {
	return &Local{subs: newHandlerSet("local", logger.Or(log))}
}

func (b *Local) Publish(ctx context.Context, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	metrics.BusMessagesTotal.WithLabelValues("published", "local").Inc()
	b.subs.dispatch(ctx, payload)
	return nil
}

func (b *Local) Subscribe(h Handler) (func(), error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return b.subs.add(h), nil
}

func (b *Local) Close() error {
	b.closed.Store(true)
	return nil
}
