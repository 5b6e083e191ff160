package devgateway

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/realtime"
)

func TestSessionIDFromInbox(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{topic: "app/session/s1/code", want: "s1"},
		{topic: realtime.CodeInboxTopic("abc-123"), want: "abc-123"},
		{topic: "app/session//code", want: ""},
		{topic: "app/session/s1/extra/code", want: ""},
		{topic: "session/s1", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sessionIDFromInbox(tt.topic), tt.topic)
	}
}

func TestRelay_ForwardsCodeToFanout(t *testing.T) {
	mr, _ := newTestBroadcaster(t)

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { rdb.Close() })

	relay := NewRelay(rdb)
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Stop)

	ch := subscribe(t, mr, realtime.SessionTopic("s1"))

	payload := `{"code":"x = 1","origin":"o1"}`
	require.Eventually(t, func() bool {
		return mr.Publish(realtime.CodeInboxTopic("s1"), payload) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	select {
	case msg := <-ch:
		// Payload relayed untouched, origin token included.
		assert.JSONEq(t, payload, msg.Payload)
	case <-time.After(3 * time.Second):
		t.Fatal("code snapshot not relayed to fan-out topic")
	}
}
