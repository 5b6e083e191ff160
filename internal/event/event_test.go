package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"codesync/internal/event"
)

type named string

func (n named) Name() string { return string(n) }

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber receives only its event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("timer.updated"), named("chat.updated")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"timer.updated"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{named("timer.updated")}, out.received["s1"])
			},
		},

		"a subscriber receives every published occurrence": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("chat.updated"), named("chat.updated")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"chat.updated"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 2)
			},
		},

		"an event fans out to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("notes.updated")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"notes.updated"}},
						{name: "s2", subscribeTo: []string{"notes.updated"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 1)
				assert.Len(t, out.received["s2"], 1)
			},
		},

		"unsubscribed events are not delivered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{named("evaluation.updated")},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"timer.updated"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Empty(t, out.received["s1"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()

			var mu sync.Mutex
			for _, s := range in.subscribers {
				s := s
				for _, n := range s.subscribeTo {
					b.Subscribe(n, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}

			b.Stop()

			tt.assert(t, out)
		})
	}
}

type subscriber struct {
	name        string
	subscribeTo []string
}

func TestBus_HandlerPanicDoesNotCrash(t *testing.T) {
	b := event.NewBus()

	var delivered bool
	var mu sync.Mutex

	b.Subscribe("e", func(ctx context.Context, e event.Event) error {
		panic("handler bug")
	})
	b.Subscribe("e", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		delivered = true
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), named("e"))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, delivered, "second handler should still run")
}
