package domain

import "time"

// Role of a session participant. The interviewer role is the elevated one:
// it sees private notes and controls the timer.
type Role string

const (
	RoleInterviewer Role = "INTERVIEWER"
	RoleCandidate   Role = "CANDIDATE"
)

// Elevated reports whether the role may subscribe to private notes and
// operate timer controls.
func (r Role) Elevated() bool { return r == RoleInterviewer }

// SessionStatus is the lifecycle state of an interview session.
type SessionStatus string

const (
	StatusCreated    SessionStatus = "CREATED"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusEnded      SessionStatus = "ENDED"
)

// Session is one shared editing context. The server-side copy is
// authoritative; client copies are eventually-consistent projections.
type Session struct {
	ID         string        `json:"id"`
	Code       string        `json:"code"`
	Language   string        `json:"language"`
	Status     SessionStatus `json:"status"`
	QuestionID string        `json:"questionId,omitempty"`
	Timer      *TimerState   `json:"timer,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// TimerStatus is the run-state of a session countdown.
type TimerStatus string

const (
	TimerIdle    TimerStatus = "IDLE"
	TimerRunning TimerStatus = "RUNNING"
	TimerPaused  TimerStatus = "PAUSED"
	TimerExpired TimerStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are possible.
func (s TimerStatus) Terminal() bool { return s == TimerExpired }

// TimerState is the authoritative countdown state broadcast by the timer
// owner. Clients never advance it locally.
type TimerState struct {
	Remaining int         `json:"timeRemaining"`
	Duration  int         `json:"timerDuration"`
	Status    TimerStatus `json:"timerStatus"`
}

// MessageKind distinguishes participant text from system notices.
type MessageKind string

const (
	MessageText   MessageKind = "TEXT"
	MessageSystem MessageKind = "SYSTEM"
)

// ChatMessage is immutable once created. IDs are unique within a session.
type ChatMessage struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionId"`
	Content    string      `json:"content"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Kind       MessageKind `json:"type"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// NoteKind categorizes an annotation.
type NoteKind string

const (
	NoteGeneral     NoteKind = "GENERAL"
	NoteCodeComment NoteKind = "CODE_COMMENT"
	NoteObservation NoteKind = "OBSERVATION"
)

// Note is an annotation attached to a session. A private note is visible
// only to its author and to interviewer-role participants.
type Note struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Content      string    `json:"content"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	Private      bool      `json:"isPrivate"`
	Kind         NoteKind  `json:"type"`
	CodeSnapshot string    `json:"codeSnapshot,omitempty"`
	LineNumber   int       `json:"lineNumber,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// VisibleTo reports whether the note may be rendered to the given viewer.
// Subscription gating already keeps private notes off candidate connections;
// this is the render-time check on top of it.
func (n Note) VisibleTo(role Role, userID string) bool {
	if !n.Private {
		return true
	}
	return role.Elevated() || n.AuthorID == userID
}

// TestResult is the outcome of one test case run.
type TestResult struct {
	ID            string `json:"id"`
	TestCaseID    string `json:"testCaseId"`
	Input         string `json:"input"`
	Expected      string `json:"expectedOutput"`
	Actual        string `json:"actualOutput"`
	Passed        bool   `json:"passed"`
	Points        int    `json:"points"`
	ExecTimeMS    int    `json:"executionTime"`
	MemoryUsedKiB int    `json:"memoryUsed"`
	Error         string `json:"error,omitempty"`
	Hidden        bool   `json:"isHidden"`
}

// EvaluationResult aggregates per-test outcomes into a session score.
type EvaluationResult struct {
	SessionID  string       `json:"sessionId"`
	TotalTests int          `json:"totalTests"`
	Passed     int          `json:"passedTests"`
	Score      float64      `json:"score"`
	MaxScore   float64      `json:"maxScore"`
	Percentage float64      `json:"percentage"`
	Results    []TestResult `json:"results"`
}

// CodeUpdate is the full-snapshot payload exchanged on the session code
// topic. Origin is a synthetic per-client token used only to suppress the
// sender's own echo; delivery is last-write-wins.
type CodeUpdate struct {
	Code      string    `json:"code"`
	Origin    string    `json:"origin"`
	UpdatedAt time.Time `json:"updatedAt"`
}
