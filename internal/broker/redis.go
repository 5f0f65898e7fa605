package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis fans out through a Redis pub/sub channel. Subscribers that are disconnected
// when a message is published never see it; go-redis re-subscribes on reconnect.
type Redis struct {
	client *redis.Client
	topic  string
	subs   *handlerSet
	log    *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

var _ MessageBroker = (*Redis)(nil)

func NewRedis(client *redis.Client, topic string, log *zap.Logger) *Redis {
	log = logger.Or(log)
	return &Redis{client: client, topic: topic, subs: newHandlerSet("redis", log), log: log}
}

func (b *Redis) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.topic, payload).Err(); err != nil {
		b.log.Warn("redis publish failed", zap.String("topic", b.topic), zap.Error(err))
		return fmt.Errorf("redis publish: %w", err)
	}
	metrics.BusMessagesTotal.WithLabelValues("published", "redis").Inc()
	return nil
}

func (b *Redis) Subscribe(h Handler) (func(), error) {
	unsub := b.subs.add(h)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return unsub, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, b.topic)

	// confirm the subscription; a failure is a connect error, not fatal
	rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
	if _, err := ps.Receive(rctx); err != nil {
		b.log.Warn("redis subscribe connect error", zap.String("topic", b.topic), zap.Error(err))
	}
	rcancel()

	b.pubsub, b.cancel, b.done = ps, cancel, make(chan struct{})
	go b.loop(ctx, ps.Channel(), b.done)

	return unsub, nil
}

func (b *Redis) loop(ctx context.Context, ch <-chan *redis.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range ch {
		b.subs.dispatch(ctx, []byte(msg.Payload))
	}
}

func (b *Redis) Close() error {
	b.mu.Lock()
	ps, cancel, done := b.pubsub, b.cancel, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	cancel()
	err := ps.Close()
	<-done
	return err
}
