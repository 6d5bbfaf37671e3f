package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestUpdate(t *testing.T) {
	var gotForce string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/update", r.URL.Path)
		gotForce = r.URL.Query().Get("force")
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	})
	ok, err := c.Update(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", gotForce)
}

func TestUpdateBusy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"accepted": false, "error": "update already in progress"})
	})
	ok, err := c.Update(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"busy":          true,
			"phase":         "updating",
			"local_version": "1.0.0",
			"last_run":      map[string]any{"id": "r1", "outcome": "updated"},
			"instances":     []map[string]any{{"pid": 9, "name": "app"}},
		})
	})
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Busy)
	assert.Equal(t, "updating", st.Phase)
	assert.Equal(t, "1.0.0", st.LocalVersion)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "r1", st.LastRun.ID)
	require.Len(t, st.Instances, 1)
	assert.Equal(t, 9, st.Instances[0].PID)
}

func TestStartStop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/start":
			writeJSON(w, http.StatusOK, map[string]any{"action": "start", "outcome": "started", "pid": 5})
		case "/api/stop":
			writeJSON(w, http.StatusInternalServerError, map[string]any{"action": "stop", "outcome": "failed", "message": "denied"})
		}
	})
	run, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, run.PID)
	assert.False(t, run.Failed())

	run, err = c.Stop(context.Background())
	require.Error(t, err)
	assert.True(t, run.Failed())
	assert.Contains(t, err.Error(), "denied")
}

func TestStartBusy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "update already in progress"})
	})
	_, err := c.Start(context.Background())
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestLogs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{"lines": []string{"a", "b", "c"}})
	})
	lines, err := c.Logs(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestErrorResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
	})
	_, err := c.Logs(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestIsReachable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"phase": "idle"})
	})
	assert.True(t, c.IsReachable(context.Background()))

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	down := New(Config{BaseURL: url, Timeout: time.Second})
	assert.False(t, down.IsReachable(context.Background()))
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultConfig().BaseURL, c.baseURL)
	assert.Equal(t, DefaultConfig().Timeout, c.client.Timeout)
}

func TestInsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"phase": "idle"})
	}))
	defer srv.Close()

	strict := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	assert.False(t, strict.IsReachable(context.Background()), "self-signed certificate must be rejected")

	insecure := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, Insecure: true})
	assert.True(t, insecure.IsReachable(context.Background()))
}

func TestBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0k" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"phase": "idle"})
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication required")

	st, err := New(Config{BaseURL: srv.URL, Token: "t0k"}).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", st.Phase)
}
