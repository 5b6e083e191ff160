package devgateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/realtime"
)

func TestEvaluator_BroadcastsAggregate(t *testing.T) {
	mr, bc := newTestBroadcaster(t)
	store := NewStore()
	ev := NewEvaluator(store, bc, 10*time.Millisecond)
	t.Cleanup(ev.Wait)

	ss := store.CreateSession()
	// Passes everything except the hidden empty-input case: 15 of 20.
	_, err := store.UpdateSession(ss.ID, "def solve(xs):\n    return sorted(xs)\n", "python")
	require.NoError(t, err)

	ch := subscribe(t, mr, realtime.EvaluationTopic(ss.ID))

	require.NoError(t, ev.Trigger(context.Background(), ss.ID))

	select {
	case msg := <-ch:
		var res domain.EvaluationResult
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &res))
		assert.Equal(t, ss.ID, res.SessionID)
		assert.Equal(t, 4, res.TotalTests)
		assert.Equal(t, 3, res.Passed)
		assert.Equal(t, 15.0, res.Score)
		assert.Equal(t, 20.0, res.MaxScore)
		assert.Equal(t, 75.0, res.Percentage)
	case <-time.After(3 * time.Second):
		t.Fatal("no evaluation result broadcast")
	}

	require.Len(t, store.Results(ss.ID), 4)
}

func TestEvaluator_RejectsConcurrentTrigger(t *testing.T) {
	_, bc := newTestBroadcaster(t)
	store := NewStore()
	ev := NewEvaluator(store, bc, 200*time.Millisecond)
	t.Cleanup(ev.Wait)

	ss := store.CreateSession()

	require.NoError(t, ev.Trigger(context.Background(), ss.ID))
	err := ev.Trigger(context.Background(), ss.ID)
	require.True(t, errors.Is(err, errors.CodeAlreadyExists))
}

func TestEvaluator_UnknownSession(t *testing.T) {
	_, bc := newTestBroadcaster(t)
	ev := NewEvaluator(NewStore(), bc, time.Millisecond)

	err := ev.Trigger(context.Background(), "nope")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}
