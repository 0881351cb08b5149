package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrBrokerClosed is returned by Receive after the subscription or broker
// has been closed.
var ErrBrokerClosed = errors.New("realtime: broker closed")

const memorySubBuffer = 256

// MemoryBroker is an in-process Broker for single-node deployments and
// tests. Fan-out is per-topic with a buffered channel per subscriber; a
// subscriber that falls memorySubBuffer messages behind starts losing
// messages, which matches the best-effort contract.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	list := make([]*memorySubscription, 0, len(b.subs[topic]))
	for s := range b.subs[topic] {
		list = append(list, s)
	}
	b.mu.RUnlock()

	// Copy so a subscriber cannot observe a later mutation of the caller's
	// buffer.
	msg := make([]byte, len(payload))
	copy(msg, payload)

	for _, s := range list {
		select {
		case s.ch <- msg:
		case <-s.done:
		default: // slow subscriber, drop
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	s := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan []byte, memorySubBuffer),
		done:   make(chan struct{}),
	}
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*memorySubscription]struct{})
		b.subs[topic] = set
	}
	set[s] = struct{}{}
	return s, nil
}

// Close terminates the broker; every open subscription's Receive returns
// ErrBrokerClosed. Used in tests to simulate a bus outage.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			s.closeOnce()
		}
	}
	b.subs = make(map[string]map[*memorySubscription]struct{})
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *memorySubscription) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return nil, ErrBrokerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memorySubscription) Close() error {
	s.broker.mu.Lock()
	if set, ok := s.broker.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.broker.subs, s.topic)
		}
	}
	s.broker.mu.Unlock()
	s.closeOnce()
	return nil
}

func (s *memorySubscription) closeOnce() {
	s.once.Do(func() { close(s.done) })
}
