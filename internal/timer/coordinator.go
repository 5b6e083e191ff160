// Package timer replicates the authoritative session countdown. The server
// owns the clock: clients only request transitions and apply whatever state
// comes back, never decrementing locally, so every participant shows the
// same remaining time.
package timer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/event"
	"codesync/internal/realtime"
)

// Broker is the slice of the realtime client the coordinator needs.
type Broker interface {
	Subscribe(topic string, h realtime.Handler)
	Unsubscribe(topic string)
}

// Controls issues timer transition requests to the gateway.
type Controls interface {
	StartTimer(ctx context.Context, sessionID string) (*domain.TimerState, error)
	PauseTimer(ctx context.Context, sessionID string) (*domain.TimerState, error)
}

type Config struct {
	SessionID string
	Role      domain.Role
	Broker    Broker
	Controls  Controls
	EventBus  *event.Bus
}

// Coordinator tracks the countdown for one session.
type Coordinator struct {
	c Config

	mu    sync.Mutex
	state domain.TimerState
}

func NewCoordinator(c Config) *Coordinator {
	co := &Coordinator{
		c:     c,
		state: domain.TimerState{Status: domain.TimerIdle},
	}

	c.Broker.Subscribe(realtime.TimerTopic(c.SessionID), co.onBroadcast)
	return co
}

// Seed installs rehydrated timer state from the initial session load.
func (co *Coordinator) Seed(t domain.TimerState) {
	co.mu.Lock()
	co.state = t
	co.mu.Unlock()
}

// State returns the last known authoritative state.
func (co *Coordinator) State() domain.TimerState {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.state
}

// Start moves idle or paused to running. Interviewer only; the gateway
// revalidates the role server-side, this check keeps the affordance away
// from candidates. Expired is terminal: a start attempt changes nothing.
func (co *Coordinator) Start(ctx context.Context) error {
	return co.transition(ctx, co.c.Controls.StartTimer)
}

// Pause moves running to paused under the same gating as Start.
func (co *Coordinator) Pause(ctx context.Context) error {
	return co.transition(ctx, co.c.Controls.PauseTimer)
}

func (co *Coordinator) transition(ctx context.Context, action func(context.Context, string) (*domain.TimerState, error)) error {
	if !co.c.Role.Elevated() {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("timer controls require the interviewer role"))
	}

	co.mu.Lock()
	terminal := co.state.Status.Terminal()
	co.mu.Unlock()
	if terminal {
		return errors.New(errors.CodeFailedPrecond,
			errors.WithMessagef("timer already expired: session=%s", co.c.SessionID))
	}

	// On failure the displayed state stays whatever it was: no retry, no
	// optimistic guess.
	state, err := action(ctx, co.c.SessionID)
	if err != nil {
		return err
	}

	co.apply(ctx, *state)
	return nil
}

// onBroadcast replaces local state wholesale with the broadcast one.
func (co *Coordinator) onBroadcast(topic string, payload []byte) {
	var t domain.TimerState
	if err := json.Unmarshal(payload, &t); err != nil {
		slog.Warn("timer: dropping malformed broadcast", "session", co.c.SessionID, "error", err)
		return
	}

	co.apply(context.Background(), t)
}

func (co *Coordinator) apply(ctx context.Context, t domain.TimerState) {
	co.mu.Lock()
	co.state = t
	co.mu.Unlock()

	co.c.EventBus.Publish(ctx, domain.EventTimerUpdated{
		SessionID: co.c.SessionID,
		Timer:     t,
	})
}

// Close detaches the coordinator from the broker.
func (co *Coordinator) Close() {
	co.c.Broker.Unsubscribe(realtime.TimerTopic(co.c.SessionID))
}
