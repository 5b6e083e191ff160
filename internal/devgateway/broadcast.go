package devgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"codesync/internal/domain"
	"codesync/internal/realtime"
)

// Broadcaster pushes server-side state onto the session fan-out topics.
type Broadcaster struct {
	redis redis.UniversalClient
}

func NewBroadcaster(r redis.UniversalClient) *Broadcaster {
	return &Broadcaster{redis: r}
}

func (b *Broadcaster) Publish(ctx context.Context, topic string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broadcast: marshal %s: %w", topic, err)
	}
	return b.redis.Publish(ctx, topic, buf).Err()
}

// systemMessage appends a system chat entry and fans it out, so server-side
// transitions land in every participant's chat log.
func systemMessage(ctx context.Context, store *Store, bc *Broadcaster, sessionID, content string) {
	m := store.AppendMessage(domain.ChatMessage{
		SessionID:  sessionID,
		Content:    content,
		SenderID:   "system",
		SenderName: "System",
		Kind:       domain.MessageSystem,
	})
	if err := bc.Publish(ctx, realtime.ChatTopic(sessionID), m); err != nil {
		slog.ErrorContext(ctx, "broadcast: system message failed", "session", sessionID, "error", err)
	}
}

// Relay moves client code snapshots from the app-bound inbox topics onto
// the corresponding session fan-out topic, payload untouched. This is the
// server half of the code path: clients never publish to a fan-out topic
// directly.
type Relay struct {
	redis  redis.UniversalClient
	pubsub *redis.PubSub

	mu      sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewRelay(r redis.UniversalClient) *Relay {
	return &Relay{redis: r, done: make(chan struct{})}
}

const codeInboxPattern = "app/session/*/code"

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	r.started = true

	r.pubsub = r.redis.PSubscribe(ctx, codeInboxPattern)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", codeInboxPattern, err)
	}

	r.wg.Add(1)
	go r.loop()
	return nil
}

func (r *Relay) loop() {
	defer r.wg.Done()

	ch := r.pubsub.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			r.forward(m.Channel, []byte(m.Payload))
		case <-r.done:
			return
		}
	}
}

func (r *Relay) forward(inbox string, payload []byte) {
	id := sessionIDFromInbox(inbox)
	if id == "" {
		slog.Warn("relay: unrecognized inbox topic", "topic", inbox)
		return
	}

	if err := r.redis.Publish(context.Background(), realtime.SessionTopic(id), payload).Err(); err != nil {
		slog.Error("relay: forward failed", "session", id, "error", err)
	}
}

func sessionIDFromInbox(topic string) string {
	rest, ok := strings.CutPrefix(topic, "app/session/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/code")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	ps := r.pubsub
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}
	r.wg.Wait()
}
