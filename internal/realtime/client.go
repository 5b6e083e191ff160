package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"codesync/internal/telemetry"
)

const (
	defaultReconnectDelay = 5 * time.Second
	keepAliveInterval     = 30 * time.Second
	connectTimeout        = 10 * time.Second
)

// Handler is invoked once per inbound message on a subscribed topic, in the
// order messages arrive on the connection. Handlers run on the receive
// goroutine and must not block.
type Handler func(topic string, payload []byte)

type Config struct {
	Addrs []string
	Pass  string

	// ReconnectDelay is the fixed wait between reconnection attempts.
	// Attempts are unbounded: an interview session is long-lived and should
	// outlast transient broker outages. Zero means the 5 second default.
	ReconnectDelay time.Duration

	// OnStateChange, if set, is called whenever the connection flips between
	// connected and disconnected. Called from internal goroutines.
	OnStateChange func(connected bool)
}

// Client multiplexes topic subscriptions over one broker connection. It is
// exclusively owned by the session view that created it: one client per
// active session, created on mount, closed on unmount.
type Client struct {
	c Config

	rdb redis.UniversalClient

	mu       sync.Mutex
	handlers map[string][]Handler
	pubsub   *redis.PubSub
	started  bool
	closed   bool

	connected atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewClient(c Config) (*Client, error) {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Pass,
	})

	if err := telemetry.MonitorRedis(rdb); err != nil {
		return nil, fmt.Errorf("realtime: monitor redis: %w", err)
	}

	return &Client{
		c:        c,
		rdb:      rdb,
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}, nil
}

// Connect establishes the broker connection and starts the receive and
// keep-alive loops. Idempotent: a second call while connecting or connected
// is a no-op and never creates a second underlying transport.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("realtime: client is closed")
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.rdb.Ping(pingCtx).Err(); err != nil {
		// The receive loop owns recovery from here on; report the failed
		// first attempt but keep retrying in the background.
		slog.ErrorContext(ctx, "realtime: initial connect failed", "error", err)
	}

	c.wg.Add(2)
	go c.receiveLoop()
	go c.keepAlive()

	return nil
}

// Subscribe registers a handler for a topic. Valid before Connect: the
// subscription is applied once the connection is up, and re-applied after
// every reconnect.
func (c *Client) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.handlers[topic] = append(c.handlers[topic], h)
	if c.pubsub != nil {
		if err := c.pubsub.Subscribe(context.Background(), topic); err != nil {
			slog.Warn("realtime: subscribe failed, will retry on reconnect", "topic", topic, "error", err)
		}
	}
}

// Unsubscribe drops all handlers for a topic.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers, topic)
	if c.pubsub != nil {
		if err := c.pubsub.Unsubscribe(context.Background(), topic); err != nil {
			slog.Warn("realtime: unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// Publish sends a JSON-encoded message to a topic. Fire-and-forget: when
// the connection is down the message is dropped with a warning, never
// queued or retried.
func (c *Client) Publish(ctx context.Context, topic string, payload any) error {
	if !c.connected.Load() {
		slog.WarnContext(ctx, "realtime: not connected, dropping publish", "topic", topic)
		telemetry.MessagesDropped.WithLabelValues("disconnected").Inc()
		return nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: marshal %s: %w", topic, err)
	}

	if err := c.rdb.Publish(ctx, topic, b).Err(); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", topic, err)
	}

	telemetry.MessagesPublished.WithLabelValues(TopicKind(topic)).Inc()
	return nil
}

// Connected reports the current connection state. Dependent components use
// it to gate outbound publishes and drive UI indicators.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Disconnect tears down all subscriptions and the underlying transport.
// Safe to call multiple times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	if c.pubsub != nil {
		_ = c.pubsub.Close()
		c.pubsub = nil
	}
	c.handlers = make(map[string][]Handler)
	c.mu.Unlock()

	c.wg.Wait()
	c.setConnected(false)
	_ = c.rdb.Close()
}

// receiveLoop owns the subscription protocol session. On any transport or
// protocol error it drops the session, waits the fixed reconnect delay and
// builds a fresh one, re-subscribing every registered topic.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		if c.isClosed() {
			return
		}

		if err := c.receive(); err != nil && !c.isClosed() {
			c.setConnected(false)
			slog.Warn("realtime: connection lost, reconnecting",
				"delay", c.c.ReconnectDelay,
				"error", err,
			)
			telemetry.Reconnects.Inc()

			select {
			case <-time.After(c.c.ReconnectDelay):
			case <-c.done:
				return
			}
		}
	}
}

func (c *Client) receive() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	ps := c.rdb.Subscribe(context.Background(), topics...)
	c.pubsub = ps
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pubsub == ps {
			c.pubsub = nil
		}
		c.mu.Unlock()
		_ = ps.Close()
	}()

	// The subscription session counts as established once the first
	// confirmation (or any frame) arrives.
	for {
		msg, err := ps.Receive(context.Background())
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			c.setConnected(true)
		case *redis.Pong:
			c.setConnected(true)
		case *redis.Message:
			c.setConnected(true)
			c.dispatch(m.Channel, []byte(m.Payload))
		}
	}
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.Lock()
	hs := make([]Handler, len(c.handlers[topic]))
	copy(hs, c.handlers[topic])
	c.mu.Unlock()

	telemetry.MessagesReceived.WithLabelValues(TopicKind(topic)).Inc()

	for _, h := range hs {
		h(topic, payload)
	}
}

// keepAlive pings in both directions: the redis PING drives the connected
// flag from the client side, while the pubsub session's own pings keep the
// server from reaping an idle subscription.
func (c *Client) keepAlive() {
	defer c.wg.Done()

	t := time.NewTicker(keepAliveInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			err := c.rdb.Ping(ctx).Err()
			cancel()
			if err != nil {
				slog.Warn("realtime: keep-alive ping failed", "error", err)
				c.setConnected(false)
				continue
			}

			c.mu.Lock()
			ps := c.pubsub
			c.mu.Unlock()
			if ps != nil {
				if err := ps.Ping(context.Background()); err != nil {
					slog.Warn("realtime: subscription ping failed", "error", err)
				}
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) setConnected(connected bool) {
	if c.connected.Swap(connected) == connected {
		return
	}

	if c.c.OnStateChange != nil {
		c.c.OnStateChange(connected)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
