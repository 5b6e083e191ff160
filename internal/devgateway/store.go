package devgateway

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"codesync/internal/domain"
	"codesync/internal/errors"
)

// Store holds the durable side of the gateway in memory. It exists so the
// session core can be developed and tested against a complete counterpart
// without standing up the real persistence service.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	messages map[string][]domain.ChatMessage
	notes    map[string][]domain.Note
	results  map[string][]domain.TestResult
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]domain.ChatMessage),
		notes:    make(map[string][]domain.Note),
		results:  make(map[string][]domain.TestResult),
	}
}

const defaultTimerDuration = 1800 // seconds

func (s *Store) CreateSession() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := &domain.Session{
		ID:        uuid.NewString(),
		Language:  "python",
		Status:    domain.StatusCreated,
		Timer:     &domain.TimerState{Remaining: defaultTimerDuration, Duration: defaultTimerDuration, Status: domain.TimerIdle},
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[ss.ID] = ss
	return *ss
}

func (s *Store) GetSession(id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}
	return *ss, nil
}

// UpdateSession overwrites the document snapshot. An empty language keeps
// the current one; code is replaced wholesale, empty included.
func (s *Store) UpdateSession(id, code, language string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}

	ss.Code = code
	if language != "" {
		ss.Language = language
	}
	if ss.Status == domain.StatusCreated {
		ss.Status = domain.StatusInProgress
	}
	return *ss, nil
}

// StartSession marks the interview underway. Starting an in-progress
// session again is a no-op; an ended session refuses. The bool reports
// whether this call made the transition, so callers announce it once.
func (s *Store) StartSession(id string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}
	if ss.Status == domain.StatusEnded {
		return *ss, false, errors.New(errors.CodeFailedPrecond,
			errors.WithMessagef("session already ended: %s", id))
	}

	changed := ss.Status != domain.StatusInProgress
	ss.Status = domain.StatusInProgress
	return *ss, changed, nil
}

// EndSession is the terminal transition. Ending twice refuses.
func (s *Store) EndSession(id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}
	if ss.Status == domain.StatusEnded {
		return *ss, errors.New(errors.CodeFailedPrecond,
			errors.WithMessagef("session already ended: %s", id))
	}

	ss.Status = domain.StatusEnded
	return *ss, nil
}

// UpdateTimer applies fn to the session's timer under the store lock and
// returns the new state. The timer runner and the HTTP handlers both go
// through here, so transitions never interleave.
func (s *Store) UpdateTimer(id string, fn func(*domain.TimerState) error) (domain.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[id]
	if !ok {
		return domain.TimerState{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", id))
	}
	if ss.Timer == nil {
		ss.Timer = &domain.TimerState{Status: domain.TimerIdle}
	}

	if err := fn(ss.Timer); err != nil {
		return *ss.Timer, err
	}
	return *ss.Timer, nil
}

func (s *Store) AppendMessage(m domain.ChatMessage) domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return m
}

// Messages returns the chat log oldest first.
func (s *Store) Messages(sessionID string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := append([]domain.ChatMessage(nil), s.messages[sessionID]...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
	return ms
}

func (s *Store) AppendNote(n domain.Note) domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notes[n.SessionID] = append(s.notes[n.SessionID], n)
	return n
}

// Notes returns the session's notes, dropping private ones unless asked.
func (s *Store) Notes(sessionID string, includePrivate bool) []domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Note
	for _, n := range s.notes[sessionID] {
		if n.Private && !includePrivate {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *Store) SetResults(sessionID string, rs []domain.TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[sessionID] = append([]domain.TestResult(nil), rs...)
}

func (s *Store) Results(sessionID string) []domain.TestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TestResult(nil), s.results[sessionID]...)
}
