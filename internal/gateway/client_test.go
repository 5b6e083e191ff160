package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/domain"
	"codesync/internal/errors"
	"codesync/internal/gateway"
)

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(domain.Session{ID: "s1"})
	}))
	defer srv.Close()

	c := gateway.NewClient(gateway.Config{BaseURL: srv.URL, Token: "tok-123"})

	s, err := c.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := map[string]struct {
		status   int
		body     string
		wantCode errors.Code
		wantMsg  string
	}{
		"auth failure surfaces as unauthenticated": {
			status:   http.StatusUnauthorized,
			body:     `{"error":"token expired"}`,
			wantCode: errors.CodeUnauthenticated,
			wantMsg:  "token expired",
		},
		"missing session surfaces as not found": {
			status:   http.StatusNotFound,
			body:     `{"error":"no such session"}`,
			wantCode: errors.CodeNotFound,
			wantMsg:  "no such session",
		},
		"validation failure surfaces as invalid argument": {
			status:   http.StatusBadRequest,
			body:     `{"message":"content must not be blank"}`,
			wantCode: errors.CodeInvalidArgument,
			wantMsg:  "content must not be blank",
		},
		"opaque failure surfaces as internal": {
			status:   http.StatusInternalServerError,
			body:     `not json`,
			wantCode: errors.CodeInternal,
			wantMsg:  "get_session failed with status 500",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := gateway.NewClient(gateway.Config{BaseURL: srv.URL})

			_, err := c.GetSession(context.Background(), "s1")
			require.Error(t, err)

			e := errors.Convert(err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantMsg, e.Message)
		})
	}
}

func TestClient_TimerActions(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_ = json.NewEncoder(w).Encode(domain.TimerState{Remaining: 600, Duration: 900, Status: domain.TimerRunning})
	}))
	defer srv.Close()

	c := gateway.NewClient(gateway.Config{BaseURL: srv.URL, Token: "t"})

	ts, err := c.StartTimer(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "/interview-sessions/s1/timer/start", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, domain.TimerRunning, ts.Status)
	assert.Equal(t, 600, ts.Remaining)

	_, err = c.PauseTimer(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "/interview-sessions/s1/timer/pause", gotPath)
}

func TestClient_GetSessionNotes_IncludePrivate(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]domain.Note{})
	}))
	defer srv.Close()

	c := gateway.NewClient(gateway.Config{BaseURL: srv.URL})

	_, err := c.GetSessionNotes(context.Background(), "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "includePrivate=true", gotQuery)

	_, err = c.GetSessionNotes(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "includePrivate=false", gotQuery)
}

func TestClient_UnreachableGateway(t *testing.T) {
	c := gateway.NewClient(gateway.Config{BaseURL: "http://127.0.0.1:1"})

	_, err := c.GetSession(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeUnavailable))
}
