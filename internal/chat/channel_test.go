package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/chat"
	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/event"
	"codesync/internal/gateway"
	"codesync/internal/realtime"
	"codesync/internal/realtime/realtimetest"
)

type fakeGateway struct {
	mu       sync.Mutex
	sent     []gateway.SendMessageRequest
	existing []domain.ChatMessage
}

func (f *fakeGateway) SendMessage(_ context.Context, req gateway.SendMessageRequest) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return &domain.ChatMessage{ID: "m-new", Content: req.Content, SenderID: req.SenderID}, nil
}

func (f *fakeGateway) GetSessionMessages(context.Context, string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing, nil
}

func (f *fakeGateway) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func makeChannel(t *testing.T, gw *fakeGateway) (*chat.Channel, *realtimetest.Broker) {
	t.Helper()

	broker := realtimetest.NewBroker()
	ch := chat.NewChannel(chat.Config{
		SessionID: "s1",
		UserID:    "u1",
		Broker:    broker,
		Gateway:   gw,
		EventBus:  event.NewBus(),
	})
	t.Cleanup(ch.Close)
	return ch, broker
}

func msg(id, content string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		SessionID: "s1",
		Content:   content,
		SenderID:  "u2",
		Kind:      domain.MessageText,
		CreatedAt: time.Now().UTC(),
	}
}

func TestChannel_DuplicateDeliveryIsIdempotent(t *testing.T) {
	ch, broker := makeChannel(t, &fakeGateway{})

	broker.Deliver(realtime.ChatTopic("s1"), msg("42", "hello"))
	require.Len(t, ch.Messages(), 1)

	broker.Deliver(realtime.ChatTopic("s1"), msg("42", "hello"))
	assert.Len(t, ch.Messages(), 1, "delivering the same id twice must not duplicate the entry")
}

func TestChannel_LoadThenLiveDoesNotDuplicate(t *testing.T) {
	gw := &fakeGateway{existing: []domain.ChatMessage{msg("1", "first"), msg("2", "second")}}
	ch, broker := makeChannel(t, gw)

	// A live broadcast races ahead of the reload after a reconnect.
	broker.Deliver(realtime.ChatTopic("s1"), msg("2", "second"))
	require.NoError(t, ch.Load(context.Background()))

	got := ch.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID, "live arrival keeps its position")
	assert.Equal(t, "1", got[1].ID)
}

func TestChannel_LoadPreservesOldestFirstOrder(t *testing.T) {
	gw := &fakeGateway{existing: []domain.ChatMessage{msg("1", "a"), msg("2", "b"), msg("3", "c")}}
	ch, _ := makeChannel(t, gw)

	require.NoError(t, ch.Load(context.Background()))

	got := ch.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestChannel_SendRejectsBlankContent(t *testing.T) {
	gw := &fakeGateway{}
	ch, _ := makeChannel(t, gw)

	for _, content := range []string{"", "   ", "\n\t"} {
		err := ch.Send(context.Background(), content)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
	}
	assert.Equal(t, 0, gw.sentCount(), "blank content must never reach the gateway")
}

func TestChannel_SendDoesNotAppendOptimistically(t *testing.T) {
	gw := &fakeGateway{}
	ch, broker := makeChannel(t, gw)

	require.NoError(t, ch.Send(context.Background(), "hi there"))
	assert.Equal(t, 1, gw.sentCount())
	assert.Empty(t, ch.Messages(), "sent messages appear only via the live broadcast")

	// The round trip completes.
	broker.Deliver(realtime.ChatTopic("s1"), msg("m-new", "hi there"))
	assert.Len(t, ch.Messages(), 1)
}

func TestChannel_MalformedBroadcastDropped(t *testing.T) {
	ch, broker := makeChannel(t, &fakeGateway{})

	broker.Deliver(realtime.ChatTopic("s1"), []byte("nope"))
	assert.Empty(t, ch.Messages())
}
