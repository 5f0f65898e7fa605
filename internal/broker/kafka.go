package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/kafka"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"go.uber.org/zap"
)

type KafkaOptions struct {
	Brokers []string
	Topic   string
	// GroupID must be unique per process so every process receives every event.
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
}

// Kafka publishes with a keyed writer (wallet id as key) and reads with a per-process
// consumer group positioned at the end of the topic.
type Kafka struct {
	opts     KafkaOptions
	producer *kafka.Producer
	subs     *handlerSet
	log      *zap.Logger

	mu       sync.Mutex
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ MessageBroker = (*Kafka)(nil)

func NewKafka(opts KafkaOptions, log *zap.Logger) *Kafka {
	log = logger.Or(log)
	return &Kafka{
		opts:     opts,
		producer: kafka.NewProducer(kafka.ProducerConfig{Brokers: opts.Brokers, Topic: opts.Topic}),
		subs:     newHandlerSet("kafka", log),
		log:      log,
	}
}

// partitionKey keeps one wallet's events on one partition.
func partitionKey(payload []byte) []byte {
	var head struct {
		WalletID string `json:"walletId"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.WalletID == "" {
		return nil
	}
	return []byte(head.WalletID)
}

func (b *Kafka) Publish(ctx context.Context, payload []byte) error {
	if err := b.producer.Publish(ctx, partitionKey(payload), payload); err != nil {
		b.log.Warn("kafka publish failed", zap.String("topic", b.opts.Topic), zap.Error(err))
		return fmt.Errorf("kafka publish: %w", err)
	}
	metrics.BusMessagesTotal.WithLabelValues("published", "kafka").Inc()
	return nil
}

func (b *Kafka) Subscribe(h Handler) (func(), error) {
	unsub := b.subs.add(h)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumer != nil {
		return unsub, nil
	}

	b.consumer = kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        b.opts.Brokers,
		Topic:          b.opts.Topic,
		GroupID:        b.opts.GroupID,
		MinBytes:       b.opts.MinBytes,
		MaxBytes:       b.opts.MaxBytes,
		CommitInterval: b.opts.CommitInterval,
		FromLatest:     true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel, b.done = cancel, make(chan struct{})
	go b.loop(ctx, b.consumer, b.done)

	b.log.Info("kafka subscribed", zap.String("topic", b.opts.Topic), zap.String("group", b.opts.GroupID))
	return unsub, nil
}

func (b *Kafka) loop(ctx context.Context, c *kafka.Consumer, done chan<- struct{}) {
	defer close(done)
	for {
		m, err := c.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("kafka fetch error", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		b.subs.dispatch(ctx, m.Value)

		if err := c.Commit(ctx, m); err != nil && ctx.Err() == nil {
			b.log.Warn("kafka commit error", zap.Error(err))
		}
	}
}

func (b *Kafka) Close() error {
	b.mu.Lock()
	c, cancel, done := b.consumer, b.cancel, b.done
	b.consumer = nil
	b.mu.Unlock()

	var firstErr error
	if c != nil {
		cancel()
		<-done
		firstErr = c.Close()
	}
	if err := b.producer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
