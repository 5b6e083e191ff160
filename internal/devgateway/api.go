package devgateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/realtime"
)

// API wires the gateway's HTTP surface. Paths mirror the production
// service, so the session core talks to either without changes.
type API struct {
	store *Store
	auth  *Auth
	bc    *Broadcaster
	timer *TimerRunner
	eval  *Evaluator
}

type APIConfig struct {
	Engine      *gin.Engine
	Store       *Store
	Auth        *Auth
	Broadcaster *Broadcaster
	Timer       *TimerRunner
	Evaluator   *Evaluator
}

func NewAPI(c APIConfig) *API {
	a := &API{
		store: c.Store,
		auth:  c.Auth,
		bc:    c.Broadcaster,
		timer: c.Timer,
		eval:  c.Evaluator,
	}

	c.Engine.POST("/auth/token", a.issueToken)

	g := c.Engine.Group("/", c.Auth.Middleware())
	g.POST("/sessions", a.createSession)
	g.GET("/sessions/:id", a.getSession)
	g.PUT("/sessions/:id", a.updateSession)
	g.PUT("/interview-sessions/:id/start", a.startSession)
	g.PUT("/interview-sessions/:id/end", a.endSession)
	g.PUT("/interview-sessions/:id/timer/start", a.startTimer)
	g.PUT("/interview-sessions/:id/timer/pause", a.pauseTimer)
	g.POST("/evaluation/session/:id", a.triggerEvaluation)
	g.GET("/evaluation/session/:id/results", a.getResults)
	g.POST("/notes", a.createNote)
	g.GET("/notes/session/:id", a.getNotes)
	g.POST("/chat", a.sendMessage)
	g.GET("/chat/session/:id", a.getMessages)

	return a
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}

// --- auth ---

type issueTokenRequest struct {
	UserID string      `json:"userId" binding:"required"`
	Name   string      `json:"name" binding:"required"`
	Role   domain.Role `json:"role" binding:"required"`
}

func (a *API) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}
	if req.Role != domain.RoleInterviewer && req.Role != domain.RoleCandidate {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown role: %s", req.Role)))
		return
	}

	token, err := a.auth.Issue(req.UserID, req.Name, req.Role)
	if err != nil {
		abortWithError(c, errors.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// --- sessions ---

func (a *API) createSession(c *gin.Context) {
	c.JSON(http.StatusCreated, a.store.CreateSession())
}

func (a *API) getSession(c *gin.Context) {
	ss, err := a.store.GetSession(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ss)
}

type updateSessionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// updateSession is the debounced persistence path. It does not broadcast:
// live propagation already happened through the code inbox relay, and a
// second fan-out here would echo stale snapshots.
func (a *API) updateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.store.UpdateSession(c.Param("id"), req.Code, req.Language)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ss)
}

// --- lifecycle ---

// Either participant may start or end the interview; only the timer is
// interviewer-gated.
func (a *API) startSession(c *gin.Context) {
	ss, changed, err := a.store.StartSession(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if changed {
		systemMessage(c, a.store, a.bc, ss.ID, "The interview has started.")
	}
	c.JSON(http.StatusOK, ss)
}

func (a *API) endSession(c *gin.Context) {
	ss, err := a.store.EndSession(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	systemMessage(c, a.store, a.bc, ss.ID, "The interview has ended.")
	c.JSON(http.StatusOK, ss)
}

// --- timer ---

func (a *API) startTimer(c *gin.Context) {
	a.timerAction(c, a.timer.Start)
}

func (a *API) pauseTimer(c *gin.Context) {
	a.timerAction(c, a.timer.Pause)
}

func (a *API) timerAction(c *gin.Context, fn func(ctx context.Context, id string) (domain.TimerState, error)) {
	if !claimsFrom(c).Role.Elevated() {
		abortWithError(c, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("timer controls require the interviewer role")))
		return
	}

	st, err := fn(c, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// --- evaluation ---

func (a *API) triggerEvaluation(c *gin.Context) {
	if err := a.eval.Trigger(c, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "evaluating"})
}

func (a *API) getResults(c *gin.Context) {
	if _, err := a.store.GetSession(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	rs := a.store.Results(c.Param("id"))
	if rs == nil {
		rs = []domain.TestResult{}
	}
	c.JSON(http.StatusOK, rs)
}

// --- notes ---

type createNoteRequest struct {
	SessionID    string          `json:"sessionId" binding:"required"`
	Content      string          `json:"content" binding:"required"`
	Private      bool            `json:"isPrivate"`
	Kind         domain.NoteKind `json:"type"`
	CodeSnapshot string          `json:"codeSnapshot"`
	LineNumber   int             `json:"lineNumber"`
}

func (a *API) createNote(c *gin.Context) {
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}
	if _, err := a.store.GetSession(req.SessionID); err != nil {
		abortWithError(c, err)
		return
	}

	claims := claimsFrom(c)
	if req.Kind == "" {
		req.Kind = domain.NoteGeneral
	}

	n := a.store.AppendNote(domain.Note{
		SessionID:    req.SessionID,
		Content:      req.Content,
		AuthorID:     claims.Subject,
		AuthorName:   claims.Name,
		Private:      req.Private,
		Kind:         req.Kind,
		CodeSnapshot: req.CodeSnapshot,
		LineNumber:   req.LineNumber,
	})

	// Private notes fan out on their own topic so candidate connections
	// never receive them.
	topic := realtime.NotesTopic(n.SessionID)
	if n.Private {
		topic = realtime.PrivateNotesTopic(n.SessionID)
	}
	if err := a.bc.Publish(c, topic, n); err != nil {
		abortWithError(c, errors.Internal(err))
		return
	}

	c.JSON(http.StatusCreated, n)
}

func (a *API) getNotes(c *gin.Context) {
	if _, err := a.store.GetSession(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	includePrivate, _ := strconv.ParseBool(c.Query("includePrivate"))
	// The query flag is a request, the role is the decision.
	if !claimsFrom(c).Role.Elevated() {
		includePrivate = false
	}

	ns := a.store.Notes(c.Param("id"), includePrivate)
	if ns == nil {
		ns = []domain.Note{}
	}
	c.JSON(http.StatusOK, ns)
}

// --- chat ---

type sendMessageRequest struct {
	SessionID string             `json:"sessionId" binding:"required"`
	Content   string             `json:"content" binding:"required"`
	Kind      domain.MessageKind `json:"type"`
}

func (a *API) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}
	if _, err := a.store.GetSession(req.SessionID); err != nil {
		abortWithError(c, err)
		return
	}

	claims := claimsFrom(c)
	if req.Kind == "" {
		req.Kind = domain.MessageText
	}

	m := a.store.AppendMessage(domain.ChatMessage{
		SessionID:  req.SessionID,
		Content:    req.Content,
		SenderID:   claims.Subject,
		SenderName: claims.Name,
		Kind:       req.Kind,
	})

	if err := a.bc.Publish(c, realtime.ChatTopic(m.SessionID), m); err != nil {
		abortWithError(c, errors.Internal(err))
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (a *API) getMessages(c *gin.Context) {
	if _, err := a.store.GetSession(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	ms := a.store.Messages(c.Param("id"))
	if ms == nil {
		ms = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, ms)
}
