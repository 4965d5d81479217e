package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dante/internal/bridge"
	"github.com/leapstack-labs/dante/internal/notifier"
	"github.com/leapstack-labs/dante/internal/testutil"
)

func setup(t *testing.T) (*bridge.Bridge, *httptest.Server) {
	t.Helper()
	b, err := bridge.Open(context.Background(), bridge.Options{
		HistoryPath: filepath.Join(t.TempDir(), "history.db"),
		Logger:      testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	srv := New(Config{Backend: b, Logger: testutil.NewTestLogger(t)})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return b, ts
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expr.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,A,B\nr1,1,2\nr2,3,4\n"), 0o600))
	return path
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestAPI_ImportAndInspect(t *testing.T) {
	_, ts := setup(t)

	code, body := do(t, ts, http.MethodGet, "/api/objects", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	code, body = do(t, ts, http.MethodPost, "/api/imports", map[string]any{
		"source": writeCSV(t),
		"name":   "expr",
		"row_id": "ID",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	res := decode[map[string]any](t, body)
	assert.Equal(t, "expr", res["target"])

	code, body = do(t, ts, http.MethodGet, "/api/objects", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"name":"expr","class":"matrix","rows":2,"cols":2}]`, string(body))

	code, body = do(t, ts, http.MethodGet, "/api/objects/expr", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"name":"expr","class":"matrix","rows":2,"cols":2,"tabular":true}`, string(body))

	code, body = do(t, ts, http.MethodGet, "/api/objects/expr/table", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"columns":["row.names","A","B"],"rows":[["r1","1","2"],["r2","3","4"]]}`, string(body))

	code, body = do(t, ts, http.MethodGet, "/api/objects/expr/table?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"columns":["row.names","A","B"],"rows":[["r1","1","2"]]}`, string(body))

	code, body = do(t, ts, http.MethodGet, "/api/tree", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"label":"NewProject","children":[{"label":"expr","children":[{"label":"2 rows; 2 columns"}]}]}`, string(body))

	code, body = do(t, ts, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, code)
	entries := decode[[]map[string]any](t, body)
	require.Len(t, entries, 1)
	assert.Equal(t, "import", entries[0]["kind"])
	assert.Equal(t, "succeeded", entries[0]["status"])
}

func TestAPI_Errors(t *testing.T) {
	b, ts := setup(t)
	_, err := b.Evaluate(context.Background(), `SET VARIABLE labels = ['a', 'b']`)
	require.NoError(t, err)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantStep string
	}{
		{name: "missing object", method: http.MethodGet, path: "/api/objects/missing", wantCode: http.StatusNotFound},
		{name: "missing table", method: http.MethodGet, path: "/api/objects/missing/table", wantCode: http.StatusNotFound},
		{name: "not tabular", method: http.MethodGet, path: "/api/objects/labels/table", wantCode: http.StatusUnprocessableEntity},
		{name: "bad limit", method: http.MethodGet, path: "/api/objects/labels/table?limit=x", wantCode: http.StatusBadRequest},
		{
			name:     "invalid spec",
			method:   http.MethodPost,
			path:     "/api/imports",
			body:     map[string]any{"source": writeCSV(t), "name": "x", "keep": []string{"Nope"}},
			wantCode: http.StatusBadRequest,
			wantStep: "validate",
		},
		{
			name:     "missing source",
			method:   http.MethodPost,
			path:     "/api/imports",
			body:     map[string]any{"source": filepath.Join(t.TempDir(), "gone.csv"), "name": "x", "keep": []string{"A"}},
			wantCode: http.StatusBadRequest,
			wantStep: "validate",
		},
		{
			name:     "unsupported source",
			method:   http.MethodPost,
			path:     "/api/imports",
			body:     map[string]any{"source": filepath.Join(t.TempDir(), "book.xlsx"), "name": "x", "keep": []string{"A"}},
			wantCode: http.StatusBadRequest,
			wantStep: "validate",
		},
		{name: "load without path", method: http.MethodPost, path: "/api/workspace/load", body: map[string]any{}, wantCode: http.StatusBadRequest},
		{
			name:     "load missing file",
			method:   http.MethodPost,
			path:     "/api/workspace/load",
			body:     map[string]any{"path": filepath.Join(t.TempDir(), "none.ddb")},
			wantCode: http.StatusUnprocessableEntity,
		},
		{name: "save without current", method: http.MethodPost, path: "/api/workspace/save", wantCode: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, code, string(body))
			errBody := decode[errorBody](t, body)
			assert.NotEmpty(t, errBody.Error)
			assert.Equal(t, tt.wantStep, errBody.Step)
		})
	}
}

func TestAPI_Workspace(t *testing.T) {
	_, ts := setup(t)
	image := filepath.Join(t.TempDir(), "project.ddb")

	code, body := do(t, ts, http.MethodPost, "/api/imports", map[string]any{"source": writeCSV(t), "name": "expr"})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = do(t, ts, http.MethodPost, "/api/workspace/save", map[string]any{"path": image})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, workspaceBody{Path: image, Name: "project"}, decode[workspaceBody](t, body))

	code, body = do(t, ts, http.MethodPost, "/api/workspace/close", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, workspaceBody{Name: "NewProject"}, decode[workspaceBody](t, body))

	_, body = do(t, ts, http.MethodGet, "/api/objects", nil)
	assert.JSONEq(t, `[]`, string(body))

	code, body = do(t, ts, http.MethodPost, "/api/workspace/load", map[string]any{"path": image})
	require.Equal(t, http.StatusOK, code, string(body))

	_, body = do(t, ts, http.MethodGet, "/api/workspace", nil)
	assert.Equal(t, workspaceBody{Path: image, Name: "project"}, decode[workspaceBody](t, body))

	_, body = do(t, ts, http.MethodGet, "/api/objects", nil)
	assert.Contains(t, string(body), `"name":"expr"`)
}

func TestAPI_StatusAndMetrics(t *testing.T) {
	_, ts := setup(t)

	code, body := do(t, ts, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"busy":false,"since":"0001-01-01T00:00:00Z"}`, string(body))

	code, body = do(t, ts, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "dante_session_evaluation_duration_seconds")
	assert.Contains(t, string(body), "dante_session_busy")
}

func TestAPI_Events(t *testing.T) {
	b, ts := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	waitFor := func(substr string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream ended before %q", substr)
				if strings.Contains(line, substr) {
					return
				}
			case <-deadline:
				t.Fatalf("no line containing %q", substr)
			}
		}
	}

	waitFor(`"workspace":"NewProject"`)

	// The initial patch is sent after subscribing, so this event is not lost.
	b.Broadcast(notifier.Event{Type: notifier.ImportCompleted, Target: "expr"})
	waitFor(`"type":"import.completed"`)
}

func TestServeListener(t *testing.T) {
	b, err := bridge.Open(context.Background(), bridge.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Config{Backend: b, MaxConnections: 4, ShutdownTimeout: time.Second, Logger: testutil.NewTestLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestWatcher_ExternalChange(t *testing.T) {
	b, err := bridge.Open(context.Background(), bridge.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	image := filepath.Join(t.TempDir(), "project.ddb")
	require.NoError(t, b.SaveWorkspace(ctx, image))

	events := b.Subscribe()
	defer b.Unsubscribe(events)

	w := newWatcher(b, testutil.NewTestLogger(t))
	done := make(chan error, 1)
	go func() { done <- w.run(ctx) }()
	<-w.started

	f, err := os.OpenFile(image, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == notifier.WorkspaceModified {
				assert.Equal(t, image, ev.Target)
				cancel()
				assert.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("no workspace.modified event")
		}
	}
}
