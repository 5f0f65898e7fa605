// Package broker carries opaque event payloads from publishers to every subscribed
// consumer process. Implementations differ only in transport: in-process, Redis
// pub/sub, Kafka (one consumer group per process) and core NATS.
package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("broker closed")

// Handler receives one payload. It must not assume it is the only subscriber.
type Handler func(ctx context.Context, payload []byte)

// MessageBroker is the event bus contract shared by all modes.
type MessageBroker interface {
	// Publish hands payload to the bus. Networked modes deliver it to every connected
	// subscriber, including this process when it is subscribed.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe registers h; the returned func removes it.
	Subscribe(h Handler) (func(), error)
	Close() error
}

type entry struct {
	id uint64
	h  Handler
}

// handlerSet keeps subscribers in registration order and isolates handler panics.
type handlerSet struct {
	mode string
	log  *zap.Logger

	mu      sync.RWMutex
	nextID  uint64
	entries []entry
}

func newHandlerSet(mode string, log *zap.Logger) *handlerSet {
	return &handlerSet{mode: mode, log: log}
}

func (s *handlerSet) add(h Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, entry{id: id, h: h})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, e := range s.entries {
				if e.id == id {
					s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *handlerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *handlerSet) dispatch(ctx context.Context, payload []byte) {
	s.mu.RLock()
	hs := make([]Handler, len(s.entries))
	for i, e := range s.entries {
		hs[i] = e.h
	}
	s.mu.RUnlock()

	metrics.BusMessagesTotal.WithLabelValues("received", s.mode).Inc()
	for _, h := range hs {
		s.call(ctx, h, payload)
	}
}

func (s *handlerSet) call(ctx context.Context, h Handler, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("broker handler panic", zap.String("mode", s.mode), zap.Any("panic", r))
		}
	}()
	h(ctx, payload)
}
