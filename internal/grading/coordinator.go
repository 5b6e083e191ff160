// Package grading drives asynchronous code evaluation: an HTTP trigger
// starts the job, the result comes back on the session's evaluation topic.
package grading

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/event"
	"codesync/internal/realtime"
)

// defaultEvaluateTimeout bounds how long the evaluating flag may stay up
// without a result broadcast. Without it a single lost message would leave
// the panel spinning forever.
const defaultEvaluateTimeout = 60 * time.Second

type Broker interface {
	Subscribe(topic string, h realtime.Handler)
	Unsubscribe(topic string)
}

type Gateway interface {
	TriggerEvaluation(ctx context.Context, sessionID string) error
	GetEvaluationResults(ctx context.Context, sessionID string) ([]domain.TestResult, error)
}

type Config struct {
	SessionID string
	Broker    Broker
	Gateway   Gateway
	EventBus  *event.Bus

	// EvaluateTimeout overrides the evaluating-state watchdog; zero means
	// the 60 second default.
	EvaluateTimeout time.Duration
}

// Coordinator tracks evaluation state for one session.
type Coordinator struct {
	c Config

	mu         sync.Mutex
	result     *domain.EvaluationResult
	evaluating bool
	watchdog   *time.Timer
}

func NewCoordinator(c Config) *Coordinator {
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = defaultEvaluateTimeout
	}

	co := &Coordinator{c: c}
	c.Broker.Subscribe(realtime.EvaluationTopic(c.SessionID), co.onBroadcast)
	return co
}

// Load fetches previously computed raw results and synthesizes the
// aggregate client-side; the gateway is not trusted to pre-aggregate.
func (co *Coordinator) Load(ctx context.Context) error {
	raw, err := co.c.Gateway.GetEvaluationResults(ctx, co.c.SessionID)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	res := Aggregate(co.c.SessionID, raw)

	co.mu.Lock()
	co.result = &res
	co.mu.Unlock()
	return nil
}

// Evaluate triggers the asynchronous job and returns without polling. The
// evaluating flag clears when the result broadcast arrives, or when the
// watchdog gives up waiting.
func (co *Coordinator) Evaluate(ctx context.Context) error {
	co.mu.Lock()
	if co.evaluating {
		co.mu.Unlock()
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("evaluation already in progress: session=%s", co.c.SessionID))
	}
	co.evaluating = true
	co.armWatchdogLocked()
	co.mu.Unlock()

	if err := co.c.Gateway.TriggerEvaluation(ctx, co.c.SessionID); err != nil {
		co.mu.Lock()
		co.evaluating = false
		co.stopWatchdogLocked()
		co.mu.Unlock()
		return err
	}
	return nil
}

func (co *Coordinator) Evaluating() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.evaluating
}

// Result returns the latest aggregate, or nil if none has been computed.
func (co *Coordinator) Result() *domain.EvaluationResult {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.result == nil {
		return nil
	}
	r := *co.result
	r.Results = append([]domain.TestResult(nil), co.result.Results...)
	return &r
}

func (co *Coordinator) armWatchdogLocked() {
	co.stopWatchdogLocked()
	co.watchdog = time.AfterFunc(co.c.EvaluateTimeout, co.expire)
}

func (co *Coordinator) stopWatchdogLocked() {
	if co.watchdog != nil {
		co.watchdog.Stop()
		co.watchdog = nil
	}
}

func (co *Coordinator) expire() {
	co.mu.Lock()
	if !co.evaluating {
		co.mu.Unlock()
		return
	}
	co.evaluating = false
	co.watchdog = nil
	co.mu.Unlock()

	err := errors.New(errors.CodeDeadlineExceeded,
		errors.WithMessagef("no evaluation result within %s: session=%s", co.c.EvaluateTimeout, co.c.SessionID))
	slog.Warn("grading: evaluation timed out", "session", co.c.SessionID, "timeout", co.c.EvaluateTimeout)

	co.c.EventBus.Publish(context.Background(), domain.EventEvaluationUpdated{
		SessionID: co.c.SessionID,
		Err:       err,
	})
}

// onBroadcast is the only path that clears the evaluating flag with a
// result: the payload replaces local state in full.
func (co *Coordinator) onBroadcast(topic string, payload []byte) {
	var res domain.EvaluationResult
	if err := json.Unmarshal(payload, &res); err != nil {
		slog.Warn("grading: dropping malformed result", "session", co.c.SessionID, "error", err)
		return
	}

	co.mu.Lock()
	co.result = &res
	co.evaluating = false
	co.stopWatchdogLocked()
	co.mu.Unlock()

	co.c.EventBus.Publish(context.Background(), domain.EventEvaluationUpdated{
		SessionID: co.c.SessionID,
		Result:    res,
	})
}

func (co *Coordinator) Close() {
	co.mu.Lock()
	co.stopWatchdogLocked()
	co.evaluating = false
	co.mu.Unlock()

	co.c.Broker.Unsubscribe(realtime.EvaluationTopic(co.c.SessionID))
}

// Aggregate folds raw per-test results into a session score. Decimal
// arithmetic keeps the percentage exact for display; maxScore of zero
// defines the percentage as zero.
func Aggregate(sessionID string, raw []domain.TestResult) domain.EvaluationResult {
	var score, maxScore decimal.Decimal
	passed := 0

	for _, r := range raw {
		points := decimal.NewFromInt(int64(r.Points))
		maxScore = maxScore.Add(points)
		if r.Passed {
			passed++
			score = score.Add(points)
		}
	}

	percentage := decimal.Zero
	if maxScore.IsPositive() {
		percentage = score.Div(maxScore).Mul(decimal.NewFromInt(100))
	}

	return domain.EvaluationResult{
		SessionID:  sessionID,
		TotalTests: len(raw),
		Passed:     passed,
		Score:      score.InexactFloat64(),
		MaxScore:   maxScore.InexactFloat64(),
		Percentage: percentage.InexactFloat64(),
		Results:    raw,
	}
}

// Redact strips hidden test cases' input and output for non-elevated
// viewers. The data may well be present client-side; hiding it is a
// render-time obligation, not a security boundary.
func Redact(res domain.EvaluationResult, role domain.Role) domain.EvaluationResult {
	if role.Elevated() {
		return res
	}

	out := res
	out.Results = make([]domain.TestResult, len(res.Results))
	for i, r := range res.Results {
		if r.Hidden {
			r.Input = ""
			r.Expected = ""
			r.Actual = ""
		}
		out.Results[i] = r
	}
	return out
}
