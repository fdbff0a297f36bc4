package api_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/api"
	"github.com/vk/flowgridgo/internal/background"
	"github.com/vk/flowgridgo/internal/testutil"
)

// graphPayload mirrors a code-review style pipeline small enough to assert
// against: double the counter, then loop until it clears a bound.
const graphPayload = `{
	"name": "counting",
	"nodes": {
		"bump": {"function": "count"}
	},
	"conditional_edges": {
		"bump": {
			"condition": "counter >= 3",
			"true": "END",
			"false": "bump"
		}
	}
}`

type testServer struct {
	h       *testutil.Harness
	manager *background.Manager
	srv     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	h := testutil.NewHarness(t, testutil.NewCountingModule(0))
	manager := background.NewManager(h.Ctx, h.Engine)

	logger := slog.New(slog.NewTextHandler(h.Logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := httptest.NewServer(api.NewServer(logger, h.Engine, manager, h.Caps).Handler())
	t.Cleanup(srv.Close)

	return &testServer{h: h, manager: manager, srv: srv}
}

func (ts *testServer) postJSON(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Post(ts.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res, decodeBody(t, res)
}

func (ts *testServer) getJSON(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	return res, decodeBody(t, res)
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), "body: %s", raw)
	return body
}

func (ts *testServer) createGraph(t *testing.T) string {
	t.Helper()
	res, body := ts.postJSON(t, "/graph/create", graphPayload)
	require.Equal(t, http.StatusOK, res.StatusCode)
	graphID, _ := body["graph_id"].(string)
	require.NotEmpty(t, graphID)
	return graphID
}

func TestCreateGraph(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.postJSON(t, "/graph/create", graphPayload)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Graph created successfully", body["message"])
	assert.NotEmpty(t, body["graph_id"])
}

func TestCreateGraphInvalidJSON(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.postJSON(t, "/graph/create", `{"nodes": [1,2]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body["detail"], "invalid graph definition")
}

func TestRunGraph(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	graphID := ts.createGraph(t)

	res, body := ts.postJSON(t, "/graph/run",
		`{"graph_id": "`+graphID+`", "initial_state": {"counter": 0, "max_iterations": 10}}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	assert.Equal(t, "completed", body["status"])
	assert.NotEmpty(t, body["run_id"])

	finalState, ok := body["final_state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.0, finalState["counter"])

	log, ok := body["execution_log"].([]any)
	require.True(t, ok)
	assert.Len(t, log, 3)
}

func TestRunGraphUnknownID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.postJSON(t, "/graph/run", `{"graph_id": "missing"}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body["detail"], "missing")
}

func TestRunState(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	graphID := ts.createGraph(t)

	_, runBody := ts.postJSON(t, "/graph/run",
		`{"graph_id": "`+graphID+`", "initial_state": {"counter": 0}}`)
	runID := runBody["run_id"].(string)

	res, body := ts.getJSON(t, "/graph/state/"+runID)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, runID, body["run_id"])
	assert.Equal(t, "completed", body["status"])
	assert.NotContains(t, body, "current_node")
}

func TestRunStateUnknownID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.getJSON(t, "/graph/state/missing")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body["detail"], "missing")
}

func TestBackgroundRunLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	graphID := ts.createGraph(t)

	res, body := ts.postJSON(t, "/graph/run/background",
		`{"graph_id": "`+graphID+`", "initial_state": {"counter": 0}}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Workflow started in background", body["message"])

	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "/graph/state/"+runID, body["status_endpoint"])

	done, ok := ts.manager.Done(runID)
	require.True(t, ok)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background run never finished")
	}

	statusRes, statusBody := ts.getJSON(t, "/graph/background/"+runID+"/status")
	assert.Equal(t, http.StatusOK, statusRes.StatusCode)
	assert.Equal(t, "completed", statusBody["task_status"])
	assert.Equal(t, "completed", statusBody["workflow_status"])
}

func TestBackgroundStatusUnknownID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.getJSON(t, "/graph/background/missing/status")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body["detail"], "missing")
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.getJSON(t, "/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	features, ok := body["features"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, features["websocket_streaming"])
}

func TestRoot(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, body := ts.getJSON(t, "/")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body["message"])

	caps, ok := body["capabilities"].([]any)
	require.True(t, ok)
	assert.Contains(t, caps, "count")
}

func TestStreamRun(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	graphID := ts.createGraph(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/graph/run/" + graphID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"initial_state": map[string]any{"counter": 0, "max_iterations": 10},
	}))

	var types []string
	var final map[string]any
	for {
		var event map[string]any
		require.NoError(t, conn.ReadJSON(&event))

		evType, _ := event["type"].(string)
		types = append(types, evType)
		assert.Contains(t, event, "timestamp")

		if evType == "complete" {
			final = event
			break
		}
		require.NotEqual(t, "error", evType)
	}

	assert.Equal(t, "connected", types[0])
	assert.Contains(t, types, "node_start")
	assert.Contains(t, types, "node_complete")
	assert.Contains(t, types, "transition")

	finalState, ok := final["final_state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.0, finalState["counter"])

	log, ok := final["execution_log"].([]any)
	require.True(t, ok)
	assert.Len(t, log, 3)
}

func TestStreamRunFiltersControlKeys(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	graphID := ts.createGraph(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/graph/run/" + graphID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"initial_state": map[string]any{"counter": 2, "max_iterations": 4, "threshold": 7.0},
	}))

	for {
		var event map[string]any
		require.NoError(t, conn.ReadJSON(&event))
		if event["type"] == "node_complete" {
			update, ok := event["state_update"].(map[string]any)
			require.True(t, ok)
			assert.NotContains(t, update, "max_iterations")
			assert.NotContains(t, update, "threshold")
			assert.Contains(t, update, "counter")
		}
		if event["type"] == "complete" || event["type"] == "error" {
			return
		}
	}
}

func TestStreamRunInvalidInitialMessage(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	graphID := ts.createGraph(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/graph/run/" + graphID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event["type"])
	assert.Equal(t, "invalid JSON format", event["error"])
}

func TestStreamRunUnknownGraph(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/graph/run/missing"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"initial_state": map[string]any{}}))

	// The handshake acknowledgment still arrives, then the error.
	var connected map[string]any
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, "connected", connected["type"])

	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event["type"])
	assert.Equal(t, "workflow execution failed", event["message"])
}

func TestMethodRouting(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res, err := http.Get(ts.srv.URL + "/graph/create")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res, err = http.Post(ts.srv.URL+"/health", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}
