package devgateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/realtime"
)

// TimerRunner owns every session countdown. Clients never tick locally;
// they render whatever state arrives on the timer topic, so this runner is
// the single writer for timer state.
type TimerRunner struct {
	store    *Store
	bc       *Broadcaster
	interval time.Duration

	mu      sync.Mutex
	running map[string]chan struct{}
	wg      sync.WaitGroup
}

func NewTimerRunner(store *Store, bc *Broadcaster, interval time.Duration) *TimerRunner {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimerRunner{
		store:    store,
		bc:       bc,
		interval: interval,
		running:  make(map[string]chan struct{}),
	}
}

// Start moves idle or paused to running and begins ticking. Starting a
// running timer is a no-op that returns the current state; an expired timer
// is terminal and refuses.
func (tr *TimerRunner) Start(ctx context.Context, sessionID string) (domain.TimerState, error) {
	var was domain.TimerStatus
	st, err := tr.store.UpdateTimer(sessionID, func(t *domain.TimerState) error {
		was = t.Status
		if t.Status.Terminal() {
			return errors.New(errors.CodeFailedPrecond,
				errors.WithMessagef("timer already expired: session=%s", sessionID))
		}
		if t.Status == domain.TimerRunning {
			return nil
		}
		if t.Remaining <= 0 {
			t.Remaining = t.Duration
		}
		t.Status = domain.TimerRunning
		return nil
	})
	if err != nil {
		return st, err
	}

	tr.ensureTicking(sessionID)
	tr.broadcast(ctx, sessionID, st)
	// A redundant start on a running timer stays silent in the chat log.
	if was != domain.TimerRunning {
		systemMessage(ctx, tr.store, tr.bc, sessionID, "The interview timer has started.")
	}
	return st, nil
}

// Pause moves running to paused. Pausing a non-running timer is a no-op on
// state; expired still refuses.
func (tr *TimerRunner) Pause(ctx context.Context, sessionID string) (domain.TimerState, error) {
	st, err := tr.store.UpdateTimer(sessionID, func(t *domain.TimerState) error {
		if t.Status.Terminal() {
			return errors.New(errors.CodeFailedPrecond,
				errors.WithMessagef("timer already expired: session=%s", sessionID))
		}
		if t.Status == domain.TimerRunning {
			t.Status = domain.TimerPaused
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	tr.stopTicking(sessionID)
	tr.broadcast(ctx, sessionID, st)
	return st, nil
}

func (tr *TimerRunner) ensureTicking(sessionID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, ok := tr.running[sessionID]; ok {
		return
	}
	stop := make(chan struct{})
	tr.running[sessionID] = stop

	tr.wg.Add(1)
	go tr.tick(sessionID, stop)
}

func (tr *TimerRunner) stopTicking(sessionID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if stop, ok := tr.running[sessionID]; ok {
		close(stop)
		delete(tr.running, sessionID)
	}
}

// release is the tick goroutine's own cleanup. It only removes the entry if
// it still refers to this goroutine's stop channel, so a pause-then-start
// cycle that already replaced the entry is left alone.
func (tr *TimerRunner) release(sessionID string, stop chan struct{}) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if cur, ok := tr.running[sessionID]; ok && cur == stop {
		close(cur)
		delete(tr.running, sessionID)
	}
}

func (tr *TimerRunner) tick(sessionID string, stop chan struct{}) {
	defer tr.wg.Done()

	t := time.NewTicker(tr.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			st, err := tr.store.UpdateTimer(sessionID, func(t *domain.TimerState) error {
				if t.Status != domain.TimerRunning {
					return errors.New(errors.CodeFailedPrecond, errors.WithMessagef("not running"))
				}
				t.Remaining--
				if t.Remaining <= 0 {
					t.Remaining = 0
					t.Status = domain.TimerExpired
				}
				return nil
			})
			if err != nil {
				// Paused or gone between ticks; this goroutine is stale.
				tr.release(sessionID, stop)
				return
			}

			ctx := context.Background()
			tr.broadcast(ctx, sessionID, st)

			if st.Status.Terminal() {
				tr.expire(ctx, sessionID)
				tr.release(sessionID, stop)
				return
			}

		case <-stop:
			return
		}
	}
}

// expire posts the end-of-interview system message so both participants see
// the cutoff in the chat log, not just on the timer widget.
func (tr *TimerRunner) expire(ctx context.Context, sessionID string) {
	systemMessage(ctx, tr.store, tr.bc, sessionID, "Time is up. The interview timer has expired.")
}

func (tr *TimerRunner) broadcast(ctx context.Context, sessionID string, st domain.TimerState) {
	if err := tr.bc.Publish(ctx, realtime.TimerTopic(sessionID), st); err != nil {
		slog.ErrorContext(ctx, "timer: broadcast failed", "session", sessionID, "error", err)
	}
}

// Stop halts every countdown goroutine without touching stored state.
func (tr *TimerRunner) Stop() {
	tr.mu.Lock()
	for id, stop := range tr.running {
		close(stop)
		delete(tr.running, id)
	}
	tr.mu.Unlock()

	tr.wg.Wait()
}
