package testsupport

import (
	"context"
	"errors"
	"sync"

	"reel/internal/bus"
	"reel/internal/protocol"
)

// Published is one recorded publish call.
type Published struct {
	Topic   string
	Payload []byte
}

// RecordingBus records publishes and can be told to fail them.
type RecordingBus struct {
	mu       sync.Mutex
	messages []Published
	failures int
	*bus.MemoryBus
}

// NewRecordingBus returns a recorder that also delivers to in-memory
// subscribers.
func NewRecordingBus() *RecordingBus {
	return &RecordingBus{MemoryBus: bus.NewMemoryBus()}
}

// ErrPublishRefused is returned while failures are injected.
var ErrPublishRefused = errors.New("publish refused")

// FailNext makes the next n publishes fail.
func (b *RecordingBus) FailNext(n int) {
	b.mu.Lock()
	b.failures = n
	b.mu.Unlock()
}

// Publish records the call and forwards it to the memory bus.
func (b *RecordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return ErrPublishRefused
	}
	b.messages = append(b.messages, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	b.mu.Unlock()
	return b.MemoryBus.Publish(ctx, topic, payload)
}

// Messages returns a copy of the recorded publishes.
func (b *RecordingBus) Messages() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Published(nil), b.messages...)
}

// StatusEvents decodes every recorded publish as a status event, skipping
// payloads that are not status events.
func (b *RecordingBus) StatusEvents() []protocol.StatusEvent {
	var out []protocol.StatusEvent
	for _, msg := range b.Messages() {
		evt, err := protocol.DecodeStatus(msg.Payload)
		if err != nil || evt.Phase == "" {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Phases returns the recorded status phases in publish order.
func (b *RecordingBus) Phases() []protocol.Phase {
	events := b.StatusEvents()
	out := make([]protocol.Phase, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Phase)
	}
	return out
}

var _ bus.Bus = (*RecordingBus)(nil)
