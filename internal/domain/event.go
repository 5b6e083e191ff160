package domain

// Event names delivered to the rendering layer over the event bus.
const (
	EventNameCodeUpdated       = "session.code.updated"
	EventNameTimerUpdated      = "session.timer.updated"
	EventNameChatUpdated       = "session.chat.updated"
	EventNameNotesUpdated      = "session.notes.updated"
	EventNameEvaluationUpdated = "session.evaluation.updated"
	EventNameConnectionChanged = "connection.changed"
)

type EventCodeUpdated struct {
	SessionID string
	Code      string
	// Remote is false when the update originated from a local edit. The
	// rendering layer must not re-apply local updates to the editor.
	Remote bool
}

func (EventCodeUpdated) Name() string { return EventNameCodeUpdated }

type EventTimerUpdated struct {
	SessionID string
	Timer     TimerState
}

func (EventTimerUpdated) Name() string { return EventNameTimerUpdated }

type EventChatUpdated struct {
	SessionID string
	Latest    ChatMessage
}

func (EventChatUpdated) Name() string { return EventNameChatUpdated }

type EventNotesUpdated struct {
	SessionID string
	Latest    Note
}

func (EventNotesUpdated) Name() string { return EventNameNotesUpdated }

type EventEvaluationUpdated struct {
	SessionID string
	Result    EvaluationResult
	// Err is set when evaluation failed or timed out without a result.
	Err error
}

func (EventEvaluationUpdated) Name() string { return EventNameEvaluationUpdated }

type EventConnectionChanged struct {
	Connected bool
}

func (EventConnectionChanged) Name() string { return EventNameConnectionChanged }
