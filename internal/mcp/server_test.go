package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
}
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	var p struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(params, &p)
	return JSONResult(map[string]any{"success": true, "echo": p.Text})
}

func testServer(t *testing.T, in string) (*Server, *bytes.Buffer) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(echoTool{})
	s := NewServer(reg, ServerInfo{Name: "test", Version: "0.0.0"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	out := &bytes.Buffer{}
	s.in = strings.NewReader(in)
	s.out = out
	return s, out
}

func TestRun_InitializeThenToolsListThenCall(t *testing.T) {
	in := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"t"}}}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n" +
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}` + "\n"

	s, out := testServer(t, in)
	require.NoError(t, s.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// The notification gets no response: three responses for four messages.
	require.Len(t, lines, 3)

	var initResp Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &initResp))
	assert.Nil(t, initResp.Error)

	var callResp struct {
		Result ToolsCallResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &callResp))
	require.Len(t, callResp.Result.Content, 1)
	assert.Contains(t, callResp.Result.Content[0].Text, `"echo": "hi"`)
}

func TestHandleMessage_UnknownMethodIsMethodNotFound(t *testing.T) {
	s, _ := testServer(t, "")
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"nope"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestHandleMessage_ParseErrorOnGarbage(t *testing.T) {
	s, _ := testServer(t, "")
	resp := s.HandleMessage(context.Background(), []byte(`{not json`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParse, resp.Error.Code)
}

func TestHandleMessage_UnknownToolReturnsError(t *testing.T) {
	s, _ := testServer(t, "")
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing"}}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestRegistry_DuplicateToolPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{})
	assert.Panics(t, func() { reg.Register(echoTool{}) })
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{})
	defs := reg.List()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
}
