// Package realtimetest provides an in-process broker fake for component
// tests that need to inject broadcasts and observe publishes without redis.
package realtimetest

import (
	"context"
	"encoding/json"
	"sync"

	"codesync/internal/realtime"
)

type Published struct {
	Topic   string
	Payload []byte
}

// Broker implements the Broker interface the session components consume.
type Broker struct {
	mu        sync.Mutex
	handlers  map[string][]realtime.Handler
	published []Published
}

func NewBroker() *Broker {
	return &Broker{handlers: make(map[string][]realtime.Handler)}
}

func (b *Broker) Subscribe(topic string, h realtime.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

func (b *Broker) Unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
}

func (b *Broker) Publish(_ context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.published = append(b.published, Published{Topic: topic, Payload: raw})
	b.mu.Unlock()
	return nil
}

// Deliver synchronously invokes every handler subscribed to topic, as the
// receive loop would.
func (b *Broker) Deliver(topic string, payload any) {
	raw, ok := payload.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			panic(err)
		}
	}

	b.mu.Lock()
	hs := make([]realtime.Handler, len(b.handlers[topic]))
	copy(hs, b.handlers[topic])
	b.mu.Unlock()

	for _, h := range hs {
		h(topic, raw)
	}
}

// Published returns a copy of everything published so far.
func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedTo filters published messages by topic.
func (b *Broker) PublishedTo(topic string) []Published {
	var out []Published
	for _, p := range b.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Subscribed reports whether any handler is registered for topic.
func (b *Broker) Subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic]) > 0
}
