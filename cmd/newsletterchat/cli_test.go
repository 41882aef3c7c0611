package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, upstreamStatus string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/session/start":
			_ = enc.Encode(map[string]string{"session_id": "s-new"})
		case r.Method == http.MethodGet && r.URL.Path == "/sessions":
			_ = enc.Encode(map[string]any{"sessions": []map[string]any{
				{"session_id": "s-1", "title": "Spring issue", "created_at": "2024-05-01T10:00:00"},
			}})
		case r.Method == http.MethodGet && r.URL.Path == "/session/s-1":
			_ = enc.Encode(map[string]any{
				"created_at": "2024-05-01T10:00:00",
				"messages": []map[string]any{
					{"speaker": "user", "content": "Draft an intro", "timestamp": "2024-05-01T10:00:00"},
					{"speaker": "assistant", "content": "# Welcome\nHello readers", "timestamp": "2024-05-01T10:00:03"},
				},
			})
		case r.Method == http.MethodPatch && r.URL.Path == "/session/s-1":
			_ = enc.Encode(map[string]string{"status": "ok"})
		case r.Method == http.MethodDelete && r.URL.Path == "/session/s-1":
			_ = enc.Encode(map[string]string{"status": "deleted"})
		case r.Method == http.MethodPost && r.URL.Path == "/message":
			_ = enc.Encode(map[string]any{"speaker": "assistant", "content": "- idea one\n- idea two", "timestamp": "2024-05-01T10:01:00"})
		case r.URL.Path == "/health":
			_ = enc.Encode(map[string]string{"status": "healthy", "timestamp": "2024-05-01T10:00:00"})
		case r.URL.Path == "/health/openai":
			_ = enc.Encode(map[string]string{"status": upstreamStatus, "timestamp": "2024-05-01T10:00:00"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = enc.Encode(map[string]string{"detail": "Not Found"})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// execute runs the CLI with an isolated config, log and state directory
func execute(t *testing.T, backendURL, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("NEWSLETTERCHAT_CONFIG", "")
	t.Setenv("NEWSLETTERCHAT_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("NEWSLETTERCHAT_STATE_DB", filepath.Join(dir, "state.db"))

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--backend-url", backendURL, "--no-telemetry"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestHealthCommand(t *testing.T) {
	srv := newBackend(t, "healthy")
	out, err := execute(t, srv.URL, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "service:   healthy")
	assert.Contains(t, out, "openai:    healthy")
}

func TestHealthCommand_Degraded(t *testing.T) {
	srv := newBackend(t, "degraded")
	out, err := execute(t, srv.URL, "", "health")
	require.Error(t, err)
	assert.Contains(t, out, "openai:    degraded")
}

func TestSessionsCommands(t *testing.T) {
	srv := newBackend(t, "healthy")

	out, err := execute(t, srv.URL, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "s-1")
	assert.Contains(t, out, "Spring issue")

	out, err = execute(t, srv.URL, "", "sessions", "show", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Draft an intro")
	assert.Contains(t, out, "Welcome")
	assert.Contains(t, out, "Hello readers")

	out, err = execute(t, srv.URL, "", "sessions", "rename", "s-1", "Summer", "issue")
	require.NoError(t, err)
	assert.Contains(t, out, `Renamed session s-1 to "Summer issue"`)

	out, err = execute(t, srv.URL, "", "sessions", "delete", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session s-1")

	out, err = execute(t, srv.URL, "", "sessions", "new")
	require.NoError(t, err)
	assert.Equal(t, "s-new\n", out)

	_, err = execute(t, srv.URL, "", "sessions", "show", "missing")
	require.Error(t, err)
}

func TestChatCommand(t *testing.T) {
	srv := newBackend(t, "healthy")

	out, err := execute(t, srv.URL, "Ideas please\n/quit\n", "chat", "--ephemeral")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: s-new")
	assert.Contains(t, out, "  • idea one")
	assert.Contains(t, out, "Goodbye!")
}

func TestRootRunsChatAndRestoresSession(t *testing.T) {
	srv := newBackend(t, "healthy")

	out, err := execute(t, srv.URL, "/history\n", "--session-id", "s-1", "--ephemeral")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: s-1")
	assert.Contains(t, out, "Draft an intro")
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "ftp://nowhere", "", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
