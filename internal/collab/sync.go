// Package collab keeps one shared code document consistent across the
// participants of a session. Synchronization is full-snapshot,
// last-write-wins: there is no merge, and two edits racing within a network
// round trip resolve to whichever broadcast lands last. That is the accepted
// consistency model of the product, not a defect to paper over here.
package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"codesync/internal/domain"
	"codesync/internal/event"
	"codesync/internal/gateway"
	"codesync/internal/realtime"
)

const defaultSaveDebounce = time.Second

// Broker is the slice of the realtime client the document sync needs.
type Broker interface {
	Subscribe(topic string, h realtime.Handler)
	Unsubscribe(topic string)
	Publish(ctx context.Context, topic string, payload any) error
}

// Saver persists document snapshots durably.
type Saver interface {
	UpdateSession(ctx context.Context, id string, req gateway.UpdateSessionRequest) (*domain.Session, error)
}

type Config struct {
	SessionID string
	Broker    Broker
	Saver     Saver
	EventBus  *event.Bus

	// SaveDebounce is how long after the most recent local edit the durable
	// write fires. Each new edit cancels and re-arms the pending write, so
	// continuous typing persists at most once per interval and always once
	// after the typing stops. Zero means 1 second.
	SaveDebounce time.Duration

	// OnSaveError is called when a debounced persistence write fails. The
	// content stays local and the next edit re-arms a fresh write.
	OnSaveError func(error)
}

// Sync is the per-session document synchronizer. One instance per mounted
// session view; Close must be called on unmount.
type Sync struct {
	c      Config
	origin string

	mu        sync.Mutex
	code      string
	language  string
	saveTimer *time.Timer
	closed    bool
}

func NewSync(c Config) *Sync {
	if c.SaveDebounce <= 0 {
		c.SaveDebounce = defaultSaveDebounce
	}

	s := &Sync{
		c:      c,
		origin: uuid.NewString(),
	}

	c.Broker.Subscribe(realtime.SessionTopic(c.SessionID), s.onBroadcast)
	return s
}

// Seed installs the rehydrated document state without broadcasting or
// persisting, for initial load from the gateway.
func (s *Sync) Seed(code, language string) {
	s.mu.Lock()
	s.code = code
	s.language = language
	s.mu.Unlock()
}

func (s *Sync) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *Sync) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetCode applies a local edit: update local state, broadcast the full new
// snapshot immediately, and re-arm the debounced durable write.
func (s *Sync) SetCode(ctx context.Context, code string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.code = code
	s.rearmSaveLocked()
	s.mu.Unlock()

	if err := s.c.Broker.Publish(ctx, realtime.CodeInboxTopic(s.c.SessionID), domain.CodeUpdate{
		Code:      code,
		Origin:    s.origin,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		slog.ErrorContext(ctx, "collab: broadcast code update failed", "session", s.c.SessionID, "error", err)
	}

	s.c.EventBus.Publish(ctx, domain.EventCodeUpdated{
		SessionID: s.c.SessionID,
		Code:      code,
		Remote:    false,
	})
}

// SetLanguage persists immediately: language switches are rare, discrete
// events that should not wait out a debounce window.
func (s *Sync) SetLanguage(ctx context.Context, language string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.language = language
	code := s.code
	s.mu.Unlock()

	_, err := s.c.Saver.UpdateSession(ctx, s.c.SessionID, gateway.UpdateSessionRequest{
		Code:     code,
		Language: language,
	})
	return err
}

// rearmSaveLocked cancels any pending write and schedules a new one.
// Skipping the cancel here would let a stale snapshot overwrite a newer one.
func (s *Sync) rearmSaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.c.SaveDebounce, s.save)
}

func (s *Sync) save() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	code, language := s.code, s.language
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.c.Saver.UpdateSession(ctx, s.c.SessionID, gateway.UpdateSessionRequest{
		Code:     code,
		Language: language,
	}); err != nil {
		slog.ErrorContext(ctx, "collab: persist code failed", "session", s.c.SessionID, "error", err)
		if s.c.OnSaveError != nil {
			s.c.OnSaveError(err)
		}
	}
}

func (s *Sync) onBroadcast(topic string, payload []byte) {
	var u domain.CodeUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		slog.Warn("collab: dropping malformed code update", "session", s.c.SessionID, "error", err)
		return
	}

	// The broker echoes to the sender too; our own snapshot must not loop
	// back into the editor as a remote change.
	if u.Origin == s.origin {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.code = u.Code
	s.mu.Unlock()

	s.c.EventBus.Publish(context.Background(), domain.EventCodeUpdated{
		SessionID: s.c.SessionID,
		Code:      u.Code,
		Remote:    true,
	})
}

// Close cancels the pending debounce write and detaches from the broker.
func (s *Sync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()

	s.c.Broker.Unsubscribe(realtime.SessionTopic(s.c.SessionID))
}
