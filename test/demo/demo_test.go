// Package demo drives a full interview session end to end: one in-process
// gateway, one broker, an interviewer and a candidate client, exercising
// every channel the session carries.
package demo

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/client"
	"codesync/internal/devgateway"
	"codesync/internal/domain"
	"codesync/internal/gateway"
)

func TestInterviewSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mr := miniredis.RunT(t)

	var gc devgateway.Config
	gc.Redis.Addrs = []string{mr.Addr()}
	gc.Auth.Secret = "demo-secret"
	gc.TickInterval = 20 * time.Millisecond
	gc.EvalDelay = 20 * time.Millisecond

	srv, err := devgateway.Init(gc)
	require.NoError(t, err)
	require.NoError(t, srv.StartRelay(ctx))
	t.Cleanup(srv.Shutdown)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	// The interviewer authenticates and creates the session.
	anon := gateway.NewClient(gateway.Config{BaseURL: hs.URL})
	intToken, err := anon.IssueToken(ctx, gateway.IssueTokenRequest{UserID: "u-int", Name: "Ada", Role: domain.RoleInterviewer})
	require.NoError(t, err)
	candToken, err := anon.IssueToken(ctx, gateway.IssueTokenRequest{UserID: "u-cand", Name: "Grace", Role: domain.RoleCandidate})
	require.NoError(t, err)

	ss, err := gateway.NewClient(gateway.Config{BaseURL: hs.URL, Token: intToken}).CreateSession(ctx)
	require.NoError(t, err)

	join := func(userID, name, token string, role domain.Role) *client.Client {
		c := client.Config{
			SessionID: ss.ID,
			UserID:    userID,
			UserName:  name,
			Role:      role,
			Token:     token,
		}
		c.Gateway.BaseURL = hs.URL
		c.Redis.Addrs = []string{mr.Addr()}
		c.ReconnectDelay = 50 * time.Millisecond

		cl, err := client.Init(c)
		require.NoError(t, err)
		t.Cleanup(cl.Shutdown)

		require.NoError(t, cl.Start(ctx))
		require.Eventually(t, cl.Connected, 3*time.Second, 10*time.Millisecond)
		return cl
	}

	interviewer := join("u-int", "Ada", intToken, domain.RoleInterviewer)
	candidate := join("u-cand", "Grace", candToken, domain.RoleCandidate)

	// The candidate types; the interviewer's editor converges on the same
	// snapshot through the relay, and the candidate sees no echo of their
	// own edit as a remote change.
	candidate.Document().SetCode(ctx, "def solve(xs):\n    if not xs:\n        return []\n    return sorted(xs)\n")
	require.Eventually(t, func() bool {
		return interviewer.Document().Code() == candidate.Document().Code()
	}, 3*time.Second, 10*time.Millisecond)

	// Chat reaches both participants exactly once.
	require.NoError(t, interviewer.Chat().Send(ctx, "walk me through your approach"))
	require.Eventually(t, func() bool {
		return len(candidate.Chat().Messages()) == 1 && len(interviewer.Chat().Messages()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "walk me through your approach", candidate.Chat().Messages()[0].Content)

	// A private interviewer note never reaches the candidate; a shared one
	// does.
	require.NoError(t, interviewer.Notes().Add(ctx, "nervous but methodical", true, domain.NoteObservation))
	require.NoError(t, interviewer.Notes().Add(ctx, "good question choice", false, domain.NoteGeneral))
	require.Eventually(t, func() bool {
		return len(interviewer.Notes().Visible()) == 2 && len(candidate.Notes().Visible()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "good question choice", candidate.Notes().Visible()[0].Content)

	// Timer control is interviewer-only; the running state fans out to the
	// candidate without any local ticking.
	require.Error(t, candidate.Timer().Start(ctx))
	require.NoError(t, interviewer.Timer().Start(ctx))
	require.Eventually(t, func() bool {
		return candidate.Timer().State().Status == domain.TimerRunning
	}, 3*time.Second, 10*time.Millisecond)

	// The start also lands in the chat log as a system notice.
	require.Eventually(t, func() bool {
		ms := candidate.Chat().Messages()
		return len(ms) == 2 && ms[1].Kind == domain.MessageSystem
	}, 3*time.Second, 10*time.Millisecond)

	// Evaluation: triggered once, results converge on both sides.
	require.NoError(t, interviewer.Grading().Evaluate(ctx))
	require.Eventually(t, func() bool {
		return interviewer.Grading().Result() != nil && candidate.Grading().Result() != nil
	}, 3*time.Second, 10*time.Millisecond)

	res := interviewer.Grading().Result()
	assert.Equal(t, 100.0, res.Percentage)
	assert.False(t, interviewer.Grading().Evaluating())

	// Broker outage and recovery: both clients reconverge and keep
	// receiving broadcasts afterwards.
	mr.Close()
	require.Eventually(t, func() bool {
		return !interviewer.Connected() && !candidate.Connected()
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, mr.Restart())
	require.Eventually(t, func() bool {
		return interviewer.Connected() && candidate.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, candidate.Chat().Send(ctx, "done, I think"))
	require.Eventually(t, func() bool {
		ms := interviewer.Chat().Messages()
		return len(ms) > 0 && ms[len(ms)-1].Content == "done, I think"
	}, 3*time.Second, 10*time.Millisecond)
}
