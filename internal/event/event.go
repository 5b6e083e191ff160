package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 10 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. It is the hand-off point between the
// session core and whatever renders its state: components publish update
// events, the rendering layer subscribes.
type Bus struct {
	pool     chan struct{}
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]Handler
	timeout  time.Duration
}

// NewBus creates a new event bus. Caller should call Stop for graceful
// shutdown of in-flight handlers.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]Handler),
		timeout:  defaultTimeout,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

type Option func(*Bus)

// WithPoolSize bounds the number of concurrently running handlers.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		b.pool = make(chan struct{}, n)
	}
}

// WithHandlerTimeout bounds how long a single handler may run.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.timeout = d
	}
}

// Subscribe to an event by name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish an event. Handlers run concurrently; ordering across events is
// not guaranteed, so events carry snapshots rather than deltas.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all in-flight handlers to finish.
func (b *Bus) Stop() {
	b.wg.Wait()
}
