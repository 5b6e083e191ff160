package grading_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/event"
	"codesync/internal/grading"
	"codesync/internal/realtime"
	"codesync/internal/realtime/realtimetest"
)

type fakeGateway struct {
	mu       sync.Mutex
	triggers int
	raw      []domain.TestResult
	err      error
}

func (f *fakeGateway) TriggerEvaluation(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.err
}

func (f *fakeGateway) GetEvaluationResults(context.Context, string) ([]domain.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw, nil
}

func makeCoordinator(t *testing.T, gw *fakeGateway, timeout time.Duration) (*grading.Coordinator, *realtimetest.Broker, *event.Bus) {
	t.Helper()

	broker := realtimetest.NewBroker()
	bus := event.NewBus()
	co := grading.NewCoordinator(grading.Config{
		SessionID:       "s1",
		Broker:          broker,
		Gateway:         gw,
		EventBus:        bus,
		EvaluateTimeout: timeout,
	})
	t.Cleanup(co.Close)
	return co, broker, bus
}

func TestAggregate(t *testing.T) {
	res := grading.Aggregate("s1", []domain.TestResult{
		{Points: 10, Passed: true},
		{Points: 5, Passed: false},
		{Points: 5, Passed: true},
	})

	assert.Equal(t, 3, res.TotalTests)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 15.0, res.Score)
	assert.Equal(t, 20.0, res.MaxScore)
	assert.Equal(t, 75.0, res.Percentage)
}

func TestAggregate_ZeroMaxScore(t *testing.T) {
	res := grading.Aggregate("s1", []domain.TestResult{{Points: 0, Passed: true}})
	assert.Equal(t, 0.0, res.Percentage, "zero max score defines percentage as zero, not NaN")
}

func TestCoordinator_ResultBroadcastClearsEvaluating(t *testing.T) {
	gw := &fakeGateway{}
	co, broker, _ := makeCoordinator(t, gw, time.Minute)

	require.NoError(t, co.Evaluate(context.Background()))
	require.True(t, co.Evaluating())
	assert.Equal(t, 1, gw.triggers)

	broker.Deliver(realtime.EvaluationTopic("s1"), domain.EvaluationResult{
		SessionID: "s1",
		Score:     15, MaxScore: 20, Percentage: 75,
	})

	assert.False(t, co.Evaluating())
	require.NotNil(t, co.Result())
	assert.Equal(t, 75.0, co.Result().Percentage)
}

func TestCoordinator_TriggerFailureClearsEvaluating(t *testing.T) {
	gw := &fakeGateway{err: errors.New(errors.CodeUnavailable)}
	co, _, _ := makeCoordinator(t, gw, time.Minute)

	err := co.Evaluate(context.Background())
	require.Error(t, err)
	assert.False(t, co.Evaluating())
}

func TestCoordinator_DoubleEvaluateRejected(t *testing.T) {
	gw := &fakeGateway{}
	co, _, _ := makeCoordinator(t, gw, time.Minute)

	require.NoError(t, co.Evaluate(context.Background()))
	err := co.Evaluate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))
	assert.Equal(t, 1, gw.triggers)
}

func TestCoordinator_WatchdogClearsLostEvaluation(t *testing.T) {
	co, _, bus := makeCoordinator(t, &fakeGateway{}, 50*time.Millisecond)

	var mu sync.Mutex
	var errs []error
	bus.Subscribe(domain.EventNameEvaluationUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		errs = append(errs, e.(domain.EventEvaluationUpdated).Err)
		mu.Unlock()
		return nil
	})

	require.NoError(t, co.Evaluate(context.Background()))
	require.True(t, co.Evaluating())

	require.Eventually(t, func() bool { return !co.Evaluating() }, time.Second, 10*time.Millisecond,
		"the watchdog must clear a lost evaluation")

	bus.Stop()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], errors.CodeDeadlineExceeded))
}

func TestCoordinator_LoadSynthesizesAggregate(t *testing.T) {
	gw := &fakeGateway{raw: []domain.TestResult{
		{ID: "r1", Points: 10, Passed: true},
		{ID: "r2", Points: 5, Passed: false},
		{ID: "r3", Points: 5, Passed: true},
	}}
	co, _, _ := makeCoordinator(t, gw, time.Minute)

	require.NoError(t, co.Load(context.Background()))

	res := co.Result()
	require.NotNil(t, res)
	assert.Equal(t, 15.0, res.Score)
	assert.Equal(t, 20.0, res.MaxScore)
	assert.Equal(t, 75.0, res.Percentage)
	assert.Len(t, res.Results, 3)
}

func TestCoordinator_LoadWithNoResultsKeepsNil(t *testing.T) {
	co, _, _ := makeCoordinator(t, &fakeGateway{}, time.Minute)
	require.NoError(t, co.Load(context.Background()))
	assert.Nil(t, co.Result())
}

func TestRedact(t *testing.T) {
	res := domain.EvaluationResult{
		Results: []domain.TestResult{
			{ID: "open", Input: "1 2", Expected: "3", Actual: "3", Hidden: false},
			{ID: "hidden", Input: "9 9", Expected: "18", Actual: "17", Hidden: true},
		},
	}

	candidate := grading.Redact(res, domain.RoleCandidate)
	assert.Equal(t, "1 2", candidate.Results[0].Input, "visible tests stay intact")
	assert.Empty(t, candidate.Results[1].Input)
	assert.Empty(t, candidate.Results[1].Expected)
	assert.Empty(t, candidate.Results[1].Actual)
	assert.True(t, candidate.Results[1].Hidden, "the entry itself remains, only io is stripped")

	interviewer := grading.Redact(res, domain.RoleInterviewer)
	assert.Equal(t, "9 9", interviewer.Results[1].Input)

	// The original is never mutated.
	assert.Equal(t, "9 9", res.Results[1].Input)
}
