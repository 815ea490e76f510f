package mcp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := NewRegistry()
	reg.Register(echoTool{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	core := NewServer(reg, ServerInfo{Name: "test", Version: "0.0.0"}, logger)
	ts := httptest.NewServer(NewHTTPServer(core, "*", logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

// The full client flow over HTTP: initialize opens a session, and a
// tools/call dispatched with that session id reaches the same registry
// the stdio loop uses.
func TestHTTP_InitializeThenToolCallRoundTrip(t *testing.T) {
	ts := testHTTPServer(t)

	res := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"t"}}}`, nil)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	sessionID := res.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID, "initialize must open a session")

	var initResp Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&initResp))
	assert.Nil(t, initResp.Error)

	res2 := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"over http"}}}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)

	var callResp struct {
		Result ToolsCallResult `json:"result"`
	}
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&callResp))
	require.Len(t, callResp.Result.Content, 1)
	assert.Contains(t, callResp.Result.Content[0].Text, `"echo": "over http"`)
}

func TestHTTP_UnknownSessionRejected(t *testing.T) {
	ts := testHTTPServer(t)
	res := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": "no-such-session"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHTTP_NotificationAcceptedWithoutBody(t *testing.T) {
	ts := testHTTPServer(t)
	res := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	defer res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
}

func TestHTTP_BatchOfRequestsAnsweredTogether(t *testing.T) {
	ts := testHTTPServer(t)
	res := postJSON(t, ts.URL+"/mcp",
		`[{"jsonrpc":"2.0","id":1,"method":"tools/list"},{"jsonrpc":"2.0","id":2,"method":"tools/list"}]`, nil)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var responses []Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&responses))
	assert.Len(t, responses, 2)
}

func TestHTTP_DeleteEndsSession(t *testing.T) {
	ts := testHTTPServer(t)

	res := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"t"}}}`, nil)
	res.Body.Close()
	sessionID := res.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", sessionID)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusOK, del.StatusCode)

	res2 := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	defer res2.Body.Close()
	assert.Equal(t, http.StatusNotFound, res2.StatusCode)
}

func TestHTTP_HealthProbe(t *testing.T) {
	ts := testHTTPServer(t)
	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
