package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/ptyhost/internal/model"
	"github.com/remote-agent-terminal/ptyhost/internal/pty"
	"github.com/remote-agent-terminal/ptyhost/internal/session"
)

func requirePTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("pseudo-terminals are not available")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh is not available")
	}
}

func newSessionRouter(t *testing.T, cfg session.Config) (*gin.Engine, *session.Table) {
	t.Helper()
	requirePTY(t)
	gin.SetMode(gin.TestMode)

	if cfg.DefaultShell == "" {
		cfg.DefaultShell = "/bin/sh"
	}
	table := session.NewTable(cfg, pty.PublisherFunc(func(string, []byte) {}))
	t.Cleanup(table.Close)

	r := gin.New()
	NewSessionHandler(table).RegisterRoutes(r.Group("/api"))
	return r, table
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeCreate(t *testing.T, w *httptest.ResponseRecorder) CreateSessionResponse {
	t.Helper()
	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateSessionEmptyBody(t *testing.T) {
	r, table := newSessionRouter(t, session.Config{})

	w := do(r, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeCreate(t, w)
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.ID, "term-"))
	assert.Equal(t, 1, table.Len())
}

func TestCreateSessionExistingID(t *testing.T) {
	r, table := newSessionRouter(t, session.Config{})

	w := do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "t1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "t1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeCreate(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "t1", resp.ID)
	assert.Equal(t, 1, table.Len())
}

func TestCreateSessionFailures(t *testing.T) {
	t.Run("bad json", func(t *testing.T) {
		r, _ := newSessionRouter(t, session.Config{})
		w := do(r, http.MethodPost, "/api/sessions", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, decodeCreate(t, w).Success)
	})

	t.Run("spawn error", func(t *testing.T) {
		r, _ := newSessionRouter(t, session.Config{})
		w := do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "bad", Shell: "/nonexistent/shell"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeCreate(t, w)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("limit", func(t *testing.T) {
		r, _ := newSessionRouter(t, session.Config{MaxSessions: 1})
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "a"}).Code)
		w := do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "b"})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.False(t, decodeCreate(t, w).Success)
	})

	t.Run("closed", func(t *testing.T) {
		r, table := newSessionRouter(t, session.Config{})
		table.Close()
		w := do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "a"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	r, _ := newSessionRouter(t, session.Config{})
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "t1"}).Code)

	w := do(r, http.MethodGet, "/api/sessions/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap model.SessionSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "t1", snap.ID)
	assert.True(t, snap.IsStarted)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/t1/input", InputRequest{Data: "echo api$((3+4))\n"}).Code)
	require.Eventually(t, func() bool {
		w := do(r, http.MethodGet, "/api/sessions/t1/buffer", nil)
		var buf BufferResponse
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &buf) == nil &&
			strings.Contains(buf.Output, "api7")
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/t1/resize", ResizeRequest{Rows: 30, Cols: 100}).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPut, "/api/sessions/t1/title", TitleRequest{Title: "build"}).Code)

	w = do(r, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.SessionSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.EqualValues(t, 30, list[0].Rows)
	assert.EqualValues(t, 100, list[0].Cols)
	require.NotNil(t, list[0].Title)
	assert.Equal(t, "build", *list[0].Title)

	w = do(r, http.MethodDelete, "/api/sessions/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = do(r, http.MethodDelete, "/api/sessions/t1", nil)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/sessions/t1", nil).Code)
}

func TestUnknownSessionOperations(t *testing.T) {
	r, _ := newSessionRouter(t, session.Config{})

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/sessions/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/sessions/missing/buffer", nil).Code)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/missing/input", InputRequest{Data: "x"}).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/missing/resize", ResizeRequest{Rows: 10, Cols: 10}).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/missing/subscribe", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/missing/unsubscribe", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/sessions/missing/buffer/push", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPut, "/api/sessions/missing/title", TitleRequest{Title: "x"}).Code)
}

func TestUnknownSessionError(t *testing.T) {
	r, _ := newSessionRouter(t, session.Config{})

	w := do(r, http.MethodGet, "/api/sessions/missing/buffer", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SESSION_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, model.ErrSessionNotFound.Error()+": missing", resp.Error.Message)
}

func TestBufferReportsDiscardedBytes(t *testing.T) {
	r, _ := newSessionRouter(t, session.Config{BufferSize: 64})
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/sessions", model.CreateSessionRequest{ID: "t1"}).Code)

	do(r, http.MethodPost, "/api/sessions/t1/input", InputRequest{Data: "i=0; while [ $i -lt 20 ]; do echo line$i; i=$((i+1)); done\n"})

	var buf BufferResponse
	require.Eventually(t, func() bool {
		w := do(r, http.MethodGet, "/api/sessions/t1/buffer", nil)
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &buf) == nil &&
			strings.Contains(buf.Output, "line19")
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "t1", buf.ID)
	assert.Equal(t, 64, buf.Limit)
	assert.Positive(t, buf.Discarded)
	assert.LessOrEqual(t, len(buf.Output), 64)
}

func TestResizeRejectsZero(t *testing.T) {
	r, _ := newSessionRouter(t, session.Config{})

	w := do(r, http.MethodPost, "/api/sessions/t1/resize", ResizeRequest{Rows: 0, Cols: 80})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
