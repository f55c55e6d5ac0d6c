package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// MemoryBus is an in-process pub/sub. Publish blocks until every current
// subscriber has buffered the message or ctx ends.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	closed bool
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

// Publish delivers payload to all subscribers of topic.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	for _, sub := range subs {
		if err := sub.deliver(ctx, msg); err != nil {
			return fmt.Errorf("publish topic %q: %w", topic, err)
		}
	}
	return nil
}

// Subscribe registers a new subscription for topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memSub{
		bus:   b,
		topic: topic,
		ch:    make(chan Message, subscriptionBuffer),
		done:  make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub, nil
}

// Close closes every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memSub
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*memSub)
	b.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
	}
	return nil
}

type memSub struct {
	bus   *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}

	once sync.Once
	// sending guards ch against close while a publisher is mid-send.
	sending sync.RWMutex
}

func (s *memSub) C() <-chan Message { return s.ch }

func (s *memSub) deliver(ctx context.Context, msg Message) error {
	s.sending.RLock()
	defer s.sending.RUnlock()
	select {
	case <-s.done:
		return nil
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) Close() error {
	s.bus.mu.Lock()
	list := s.bus.subs[s.topic]
	out := list[:0]
	for _, other := range list {
		if other != s {
			out = append(out, other)
		}
	}
	if len(out) == 0 {
		delete(s.bus.subs, s.topic)
	} else {
		s.bus.subs[s.topic] = out
	}
	s.bus.mu.Unlock()

	s.shutdown()
	return nil
}

func (s *memSub) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.sending.Lock()
		close(s.ch)
		s.sending.Unlock()
	})
}

var _ Bus = (*MemoryBus)(nil)
