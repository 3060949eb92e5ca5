package bus

import (
	"context"
	"sync"
)

// FakeBus is an in-memory Bus for tests: Publish delivers synchronously to
// every handler registered on that topic.
type FakeBus struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)
	// Published records every (topic, payload) pair in publish order, for
	// assertions against ordering invariants (spec §5 O1-O4).
	Published []PublishedMessage
}

type PublishedMessage struct {
	Topic   string
	Payload []byte
}

func NewFakeBus() *FakeBus {
	return &FakeBus{handlers: make(map[string][]func([]byte))}
}

func (b *FakeBus) Subscribe(ctx context.Context, topic string, handler func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *FakeBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.Published = append(b.Published, PublishedMessage{Topic: topic, Payload: cp})
	handlers := append([]func([]byte){}, b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(cp)
	}
	return nil
}

// Deliver injects a message on topic as if it had arrived from a real
// subscriber, without recording it in Published (it's inbound, not
// something this process published).
func (b *FakeBus) Deliver(topic string, payload []byte) {
	b.mu.Lock()
	handlers := append([]func([]byte){}, b.handlers[topic]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (b *FakeBus) Close() error { return nil }
