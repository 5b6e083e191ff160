// Package chat maintains the ordered, deduplicated message log for a
// session: rehydrated from the gateway on mount, extended live from the
// broker afterwards.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/event"
	"codesync/internal/gateway"
	"codesync/internal/realtime"
)

type Broker interface {
	Subscribe(topic string, h realtime.Handler)
	Unsubscribe(topic string)
}

// Gateway is the durable side of the chat log.
type Gateway interface {
	SendMessage(ctx context.Context, req gateway.SendMessageRequest) (*domain.ChatMessage, error)
	GetSessionMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

type Config struct {
	SessionID string
	UserID    string
	Broker    Broker
	Gateway   Gateway
	EventBus  *event.Bus
}

// Channel is the per-session chat log.
type Channel struct {
	c Config

	mu   sync.Mutex
	log  []domain.ChatMessage
	seen map[string]struct{}
}

func NewChannel(c Config) *Channel {
	ch := &Channel{
		c:    c,
		seen: make(map[string]struct{}),
	}

	c.Broker.Subscribe(realtime.ChatTopic(c.SessionID), ch.onBroadcast)
	return ch
}

// Load rehydrates the log from the gateway, oldest first. Messages that
// already arrived live in the meantime are not duplicated.
func (ch *Channel) Load(ctx context.Context) error {
	msgs, err := ch.c.Gateway.GetSessionMessages(ctx, ch.c.SessionID)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	for _, m := range msgs {
		ch.appendLocked(m)
	}
	ch.mu.Unlock()
	return nil
}

// Messages returns a copy of the log in arrival order.
func (ch *Channel) Messages() []domain.ChatMessage {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]domain.ChatMessage, len(ch.log))
	copy(out, ch.log)
	return out
}

// Send validates locally and hands the message to the gateway. The message
// is NOT appended optimistically: it comes back on the live topic, and the
// UI must tolerate that round trip.
func (ch *Channel) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("chat message must not be empty"))
	}

	_, err := ch.c.Gateway.SendMessage(ctx, gateway.SendMessageRequest{
		SessionID: ch.c.SessionID,
		SenderID:  ch.c.UserID,
		Content:   content,
		Kind:      domain.MessageText,
	})
	return err
}

func (ch *Channel) onBroadcast(topic string, payload []byte) {
	var m domain.ChatMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		slog.Warn("chat: dropping malformed message", "session", ch.c.SessionID, "error", err)
		return
	}

	ch.mu.Lock()
	added := ch.appendLocked(m)
	ch.mu.Unlock()

	if added {
		ch.c.EventBus.Publish(context.Background(), domain.EventChatUpdated{
			SessionID: ch.c.SessionID,
			Latest:    m,
		})
	}
}

// appendLocked appends iff the id is unseen. Messages are immutable, so a
// duplicate delivery (reconnect reload racing a live broadcast) leaves the
// existing entry untouched.
func (ch *Channel) appendLocked(m domain.ChatMessage) bool {
	if _, ok := ch.seen[m.ID]; ok {
		return false
	}
	ch.seen[m.ID] = struct{}{}
	ch.log = append(ch.log, m)
	return true
}

func (ch *Channel) Close() {
	ch.c.Broker.Unsubscribe(realtime.ChatTopic(ch.c.SessionID))
}
