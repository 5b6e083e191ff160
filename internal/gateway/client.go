// Package gateway is the HTTP client for the external CRUD service holding
// durable session, chat, note and evaluation state. The core treats it as a
// remote collaborator: fail once, report, let the caller decide.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/telemetry"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	BaseURL string
	// Token is the bearer credential attached to every request. The gateway
	// rejects absent or expired tokens with 401, which surfaces to callers
	// as CodeUnauthenticated.
	Token   string
	Timeout time.Duration
}

type Client struct {
	c    Config
	http *http.Client
}

func NewClient(c Config) *Client {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return &Client{
		c:    c,
		http: &http.Client{Timeout: c.Timeout},
	}
}

// --- auth ---

type IssueTokenRequest struct {
	UserID string      `json:"userId"`
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
}

// IssueToken exchanges a participant identity for a bearer token. The only
// unauthenticated call; the token goes into Config.Token of a fresh client.
func (c *Client) IssueToken(ctx context.Context, req IssueTokenRequest) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "issue_token", http.MethodPost, "/auth/token", req, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// --- sessions ---

func (c *Client) CreateSession(ctx context.Context) (*domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, "create_session", http.MethodPost, "/sessions", struct{}{}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, "get_session", http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type UpdateSessionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// UpdateSession persists the current document snapshot. Called from the
// debounced save path, so at most once per second of continuous typing.
func (c *Client) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) (*domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, "update_session", http.MethodPut, "/sessions/"+url.PathEscape(id), req, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// --- lifecycle ---

// StartSession marks the interview underway. Re-starting is a no-op on the
// server side; an ended session refuses.
func (c *Client) StartSession(ctx context.Context, id string) (*domain.Session, error) {
	return c.lifecycleAction(ctx, "start_session", id, "start")
}

// EndSession is terminal; the server refuses every transition afterwards.
func (c *Client) EndSession(ctx context.Context, id string) (*domain.Session, error) {
	return c.lifecycleAction(ctx, "end_session", id, "end")
}

func (c *Client) lifecycleAction(ctx context.Context, op, id, action string) (*domain.Session, error) {
	var s domain.Session
	path := "/interview-sessions/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, op, http.MethodPut, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- timer ---

func (c *Client) StartTimer(ctx context.Context, id string) (*domain.TimerState, error) {
	return c.timerAction(ctx, "start_timer", id, "start")
}

func (c *Client) PauseTimer(ctx context.Context, id string) (*domain.TimerState, error) {
	return c.timerAction(ctx, "pause_timer", id, "pause")
}

func (c *Client) timerAction(ctx context.Context, op, id, action string) (*domain.TimerState, error) {
	var t domain.TimerState
	path := "/interview-sessions/" + url.PathEscape(id) + "/timer/" + action
	if err := c.do(ctx, op, http.MethodPut, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// --- evaluation ---

// TriggerEvaluation starts an asynchronous evaluation job. The result does
// not come back on this call: it arrives on the session's evaluation topic.
func (c *Client) TriggerEvaluation(ctx context.Context, sessionID string) error {
	return c.do(ctx, "trigger_evaluation", http.MethodPost, "/evaluation/session/"+url.PathEscape(sessionID), struct{}{}, nil)
}

func (c *Client) GetEvaluationResults(ctx context.Context, sessionID string) ([]domain.TestResult, error) {
	var rs []domain.TestResult
	err := c.do(ctx, "get_evaluation_results", http.MethodGet, "/evaluation/session/"+url.PathEscape(sessionID)+"/results", nil, &rs)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// --- notes ---

type CreateNoteRequest struct {
	SessionID    string          `json:"sessionId"`
	AuthorID     string          `json:"authorId"`
	Content      string          `json:"content"`
	Private      bool            `json:"isPrivate"`
	Kind         domain.NoteKind `json:"type"`
	CodeSnapshot string          `json:"codeSnapshot,omitempty"`
	LineNumber   int             `json:"lineNumber,omitempty"`
}

func (c *Client) CreateNote(ctx context.Context, req CreateNoteRequest) (*domain.Note, error) {
	var n domain.Note
	if err := c.do(ctx, "create_note", http.MethodPost, "/notes", req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) GetSessionNotes(ctx context.Context, sessionID string, includePrivate bool) ([]domain.Note, error) {
	var ns []domain.Note
	path := fmt.Sprintf("/notes/session/%s?includePrivate=%t", url.PathEscape(sessionID), includePrivate)
	if err := c.do(ctx, "get_notes", http.MethodGet, path, nil, &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// --- chat ---

type SendMessageRequest struct {
	SessionID string             `json:"sessionId"`
	SenderID  string             `json:"senderId"`
	Content   string             `json:"content"`
	Kind      domain.MessageKind `json:"type"`
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := c.do(ctx, "send_message", http.MethodPost, "/chat", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetSessionMessages returns the message log ordered oldest first.
func (c *Client) GetSessionMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var ms []domain.ChatMessage
	if err := c.do(ctx, "get_messages", http.MethodGet, "/chat/session/"+url.PathEscape(sessionID), nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// --- plumbing ---

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal %s: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.c.BaseURL, "/")+path, rdr)
	if err != nil {
		return fmt.Errorf("gateway: build request %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.c.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.GatewayRequests.WithLabelValues(op, "transport_error").Inc()
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("gateway unreachable: %s", op),
			errors.WithCause(err),
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.GatewayRequests.WithLabelValues(op, "error").Inc()

		var eb errorBody
		msg := ""
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			msg = eb.Error
			if msg == "" {
				msg = eb.Message
			}
		}
		if msg == "" {
			msg = fmt.Sprintf("%s failed with status %d", op, resp.StatusCode)
		}
		return errors.FromHTTPStatus(resp.StatusCode, msg)
	}

	telemetry.GatewayRequests.WithLabelValues(op, "ok").Inc()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Internal(fmt.Errorf("gateway: decode %s response: %w", op, err))
	}
	return nil
}
