// Package notes maintains the two-tier annotation log for a session.
// Everyone subscribes to the public topic; only elevated-role participants
// subscribe to the private one. Render-time filtering sits on top of that
// subscription gating, so an over-broad payload still never renders.
package notes

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

type Gateway interface {
	CreateNote(ctx context.Context, req gateway.CreateNoteRequest) (*domain.Note, error)
	GetSessionNotes(ctx context.Context, sessionID string, includePrivate bool) ([]domain.Note, error)
}

type Config struct {
	SessionID string
	UserID    string
	Role      domain.Role
	Broker    Broker
	Gateway   Gateway
	EventBus  *event.Bus
}

// Channel is the per-session note log.
type Channel struct {
	c Config

	mu    sync.Mutex
	notes []domain.Note
	index map[string]int
}

func NewChannel(c Config) *Channel {
	ch := &Channel{
		c:     c,
		index: make(map[string]int),
	}

	c.Broker.Subscribe(realtime.NotesTopic(c.SessionID), ch.onBroadcast)
	if c.Role.Elevated() {
		c.Broker.Subscribe(realtime.PrivateNotesTopic(c.SessionID), ch.onBroadcast)
	}
	return ch
}

// Load rehydrates notes from the gateway. Private notes are requested only
// for elevated viewers.
func (ch *Channel) Load(ctx context.Context) error {
	ns, err := ch.c.Gateway.GetSessionNotes(ctx, ch.c.SessionID, ch.c.Role.Elevated())
	if err != nil {
		return err
	}

	ch.mu.Lock()
	for _, n := range ns {
		ch.upsertLocked(n)
	}
	ch.mu.Unlock()
	return nil
}

// Notes returns every note in the local buffer, unfiltered. Callers
// rendering the list must use Visible.
func (ch *Channel) Notes() []domain.Note {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]domain.Note, len(ch.notes))
	copy(out, ch.notes)
	return out
}

// Visible returns the notes the configured viewer may see. A private note
// in the buffer stays invisible to a candidate who did not author it, even
// if it got there through an over-broad payload.
func (ch *Channel) Visible() []domain.Note {
	var out []domain.Note
	for _, n := range ch.Notes() {
		if n.VisibleTo(ch.c.Role, ch.c.UserID) {
			out = append(out, n)
		}
	}
	return out
}

// Add validates locally and creates the note via the gateway; it arrives
// back on a broadcast topic. The private flag reflects a UI affordance only
// the elevated role is shown.
func (ch *Channel) Add(ctx context.Context, content string, private bool, kind domain.NoteKind) error {
	if strings.TrimSpace(content) == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("note content must not be empty"))
	}
	if kind == "" {
		kind = domain.NoteGeneral
	}

	_, err := ch.c.Gateway.CreateNote(ctx, gateway.CreateNoteRequest{
		SessionID: ch.c.SessionID,
		AuthorID:  ch.c.UserID,
		Content:   content,
		Private:   private,
		Kind:      kind,
	})
	return err
}

func (ch *Channel) onBroadcast(topic string, payload []byte) {
	var n domain.Note
	if err := json.Unmarshal(payload, &n); err != nil {
		slog.Warn("notes: dropping malformed note", "session", ch.c.SessionID, "error", err)
		return
	}

	ch.mu.Lock()
	ch.upsertLocked(n)
	ch.mu.Unlock()

	ch.c.EventBus.Publish(context.Background(), domain.EventNotesUpdated{
		SessionID: ch.c.SessionID,
		Latest:    n,
	})
}

// upsertLocked replaces an existing note with the same id in place, keeping
// the door open for edit-in-place later; unseen ids append.
func (ch *Channel) upsertLocked(n domain.Note) {
	if i, ok := ch.index[n.ID]; ok {
		ch.notes[i] = n
		return
	}
	ch.index[n.ID] = len(ch.notes)
	ch.notes = append(ch.notes, n)
}

func (ch *Channel) Close() {
	ch.c.Broker.Unsubscribe(realtime.NotesTopic(ch.c.SessionID))
	if ch.c.Role.Elevated() {
		ch.c.Broker.Unsubscribe(realtime.PrivateNotesTopic(ch.c.SessionID))
	}
}
