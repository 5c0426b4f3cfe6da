// ABOUTME: Tests for the MCP session registry
// ABOUTME: Covers session creation, rejection envelopes, DELETE, CloseAll and panic recovery

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"Text to echo back"`
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	mcpServer := sdk.NewServer(&sdk.Implementation{Name: "test", Version: "1.0.0"}, nil)
	sdk.AddTool(mcpServer, &sdk.Tool{Name: "echo", Description: "Echo text"},
		func(_ context.Context, _ *sdk.CallToolRequest, args echoArgs) (*sdk.CallToolResult, any, error) {
			return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: args.Text}}}, nil, nil
		})

	srv, err := NewServer(Config{Server: mcpServer})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.CloseAll()
		ts.Close()
	})
	return srv, ts
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"raw","version":"1.0.0"}}}`

func post(t *testing.T, url, sessionID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) JSONRPCError {
	t.Helper()
	var body JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestNewServer_RequiresMCPServer(t *testing.T) {
	_, err := NewServer(Config{})
	assert.ErrorIs(t, err, ErrServerRequired)
}

func TestPost_NonInitializeWithoutSessionRejected(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts.URL+"/mcp", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	rpcErr := decodeError(t, resp)
	assert.Equal(t, JSONRPCServerError, rpcErr.Code)
	assert.Equal(t, "Bad Request: No valid session ID provided", rpcErr.Message)
}

func TestPost_UnknownSessionRejected(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts.URL+"/mcp", "not-a-session", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, JSONRPCServerError, decodeError(t, resp).Code)
}

func TestPost_BodyTooLarge(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts.URL+"/mcp", "", strings.Repeat("x", MaxRequestBodySize+1))

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, JSONRPCInvalidRequest, decodeError(t, resp).Code)
}

func TestPost_InitializeCreatesSession(t *testing.T) {
	srv, ts := newTestServer(t)

	resp := post(t, ts.URL+"/mcp", "", initializeBody)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(SessionHeader))
	assert.Equal(t, 1, srv.Count())
}

func TestSessionRequest_UnknownOrMissingSession(t *testing.T) {
	_, ts := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		for _, sessionID := range []string{"", "unknown"} {
			req, err := http.NewRequestWithContext(t.Context(), method, ts.URL+"/mcp", nil)
			require.NoError(t, err)
			if sessionID != "" {
				req.Header.Set(SessionHeader, sessionID)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s with session %q", method, sessionID)
		}
	}
}

func TestDelete_TerminatesSession(t *testing.T) {
	srv, ts := newTestServer(t)

	initResp := post(t, ts.URL+"/mcp", "", initializeBody)
	sessionID := initResp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sessionID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, srv.Count())

	after := post(t, ts.URL+"/mcp", sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, after.StatusCode)
}

func TestUnsupportedMethod(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "POST, GET, DELETE", resp.Header.Get("Allow"))
}

func TestClientRoundTrip(t *testing.T) {
	srv, ts := newTestServer(t)

	client := sdk.NewClient(&sdk.Implementation{Name: "test-agent", Version: "1.0.0"}, nil)
	cs, err := client.Connect(t.Context(), &sdk.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(t.Context(), &sdk.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "ping"},
	})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	assert.Equal(t, "ping", text.Text)
	assert.Equal(t, 1, srv.Count())
}

func TestCloseAll_DropsEverySession(t *testing.T) {
	srv, ts := newTestServer(t)

	post(t, ts.URL+"/mcp", "", initializeBody)
	post(t, ts.URL+"/mcp", "", initializeBody)
	require.Equal(t, 2, srv.Count())

	srv.CloseAll()

	assert.Equal(t, 0, srv.Count())
}

func TestRecoverJSONRPC_ConvertsPanic(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.recoverJSONRPC(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body JSONRPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, JSONRPCInternalError, body.Error.Code)
	assert.Equal(t, "Internal server error", body.Error.Message)
}

func TestIsInitializeRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"initialize", initializeBody, true},
		{"batch with initialize", `[` + initializeBody + `]`, true},
		{"tools list", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, false},
		{"garbage", `not json`, false},
		{"empty", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInitializeRequest([]byte(tt.body)))
		})
	}
}

func TestSessionRemovedWhenConnectionCloses(t *testing.T) {
	srv, ts := newTestServer(t)

	post(t, ts.URL+"/mcp", "", initializeBody)
	require.Equal(t, 1, srv.Count())

	for _, sess := range srv.sessions.drain() {
		srv.sessions.add(sess)
		require.NoError(t, sess.conn.Close())
	}

	assert.Eventually(t, func() bool { return srv.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
