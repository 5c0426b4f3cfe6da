// ABOUTME: Tests for the mcp-feedback command line
// ABOUTME: Covers flag parsing, init, the client commands and the color log handler

package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-feedback/internal/config"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(t.Context(), args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestServeCmd_Flags_DataDriven(t *testing.T) {
	type testCase struct {
		name    string
		args    []string
		host    string
		port    int
		origins []string
	}

	cases := []testCase{
		{
			name: "defaults",
			args: []string{},
		},
		{
			name: "port and host",
			args: []string{"--port", "9000", "--host", "0.0.0.0"},
			host: "0.0.0.0",
			port: 9000,
		},
		{
			name:    "repeated origins",
			args:    []string{"--allow-origin", "http://a", "--allow-origin", "http://b"},
			origins: []string{"http://a", "http://b"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &ServeCmd{}
			parser := flags.NewParser(cmd, flags.HelpFlag|flags.PassDoubleDash)
			_, err := parser.ParseArgs(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.host, cmd.Host)
			assert.Equal(t, tc.port, cmd.Port)
			assert.Equal(t, tc.origins, cmd.AllowOrigin)
		})
	}
}

func TestServeCmd_LoadConfigAppliesOverrides(t *testing.T) {
	cmd := &ServeCmd{Port: 9100, Host: "0.0.0.0"}

	cfg, err := cmd.loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout)
}

func TestRun_VersionAndMissingCommand(t *testing.T) {
	out, err := runCLI(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)

	_, err = runCLI(t, "")
	assert.Error(t, err)

	_, err = runCLI(t, "", "bogus")
	assert.Error(t, err)
}

func TestInitCmd_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "", "--config", path, "init", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "Config written to "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPort, cfg.Port)

	_, err = runCLI(t, "", "--config", path, "init", "--defaults")
	assert.ErrorIs(t, err, config.ErrExists)

	_, err = runCLI(t, "", "--config", path, "init", "--defaults", "--force")
	assert.NoError(t, err)
}

func TestInitCmd_Interactive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	answers := strings.Join([]string{
		"",       // config path (default)
		"8123",   // port
		"y",      // auto restart
		"45s",    // timeout
		"yes",    // enforce timeout
		"cancel", // orphan policy
		"",       // audit path
		"debug",  // log level
		"json",   // log format
	}, "\n") + "\n"

	_, err := runCLI(t, answers, "--config", path, "init")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Port)
	assert.True(t, cfg.AutoRestart)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.True(t, cfg.EnforceTimeout)
	assert.Equal(t, "cancel", cfg.OrphanPolicy)
	assert.Empty(t, cfg.Audit.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestInitCmd_InteractiveRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := runCLI(t, "\nnot-a-port\n", "--config", path, "init")

	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func newAPIServer(t *testing.T, ready bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no tools enabled"))
			return
		}
		_, _ = w.Write([]byte("ready (1 pending, 1 sessions)"))
	})
	mux.HandleFunc("/api/tool-calls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("status") == "pending" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = fmt.Fprint(w, `[
			{"id":"3f2a9c1e-0000-4000-8000-000000000001","toolName":"request-user-feedback",
			 "arguments":{"message":"Is the\nplan good?"},"timestamp":"2025-06-01T12:00:00Z",
			 "status":"completed","result":"ship it","userFeedback":"ship it"},
			{"id":"3f2a9c1e-0000-4000-8000-000000000002","toolName":"get-user-confirmation",
			 "arguments":{"action":"drop table"},"timestamp":"2025-06-01T11:00:00Z",
			 "status":"cancelled","cancelReason":"timeout"}
		]`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthCmd(t *testing.T) {
	ts := newAPIServer(t, true)

	out, err := runCLI(t, "", "health", "--url", ts.URL)

	require.NoError(t, err)
	assert.Equal(t, "healthy: ready (1 pending, 1 sessions)\n", out)
}

func TestHealthCmd_NotReady(t *testing.T) {
	ts := newAPIServer(t, false)

	_, err := runCLI(t, "", "health", "--url", ts.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tools enabled")
}

func TestCallsCmd_Table(t *testing.T) {
	ts := newAPIServer(t, true)

	out, err := runCLI(t, "", "calls", "--url", ts.URL+"/")
	require.NoError(t, err)

	assert.Contains(t, out, "TOOL")
	assert.Contains(t, out, "3f2a9...")
	assert.Contains(t, out, "Is the plan good?")
	assert.Contains(t, out, "ship it")
	assert.Contains(t, out, "drop table")
	assert.Contains(t, out, "timeout")
}

func TestCallsCmd_StatusFilterAndJSON(t *testing.T) {
	ts := newAPIServer(t, true)

	out, err := runCLI(t, "", "calls", "--url", ts.URL, "--status", "pending")
	require.NoError(t, err)
	assert.Equal(t, "No tool calls.\n", out)

	out, err = runCLI(t, "", "calls", "--url", ts.URL, "--status", "pending", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	_, err = runCLI(t, "", "calls", "--url", ts.URL, "--status", "lost")
	assert.Error(t, err)
}

func TestCallsCmd_ServerDown(t *testing.T) {
	ts := newAPIServer(t, true)
	url := ts.URL
	ts.Close()

	_, err := runCLI(t, "", "calls", "--url", url)

	assert.Error(t, err)
}

func TestColorHandler(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var out bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &out)

	logger.Info("hidden")
	logger.With("component", "broker").WithGroup("call").Warn("slow human", "id", "abc")

	line := out.String()
	assert.NotContains(t, line, "hidden")
	assert.Contains(t, line, "WRN slow human")
	assert.Contains(t, line, "component=broker")
	assert.Contains(t, line, "call.id=abc")
	assert.Equal(t, 1, strings.Count(line, "\n"))
}

func TestSetupLogger_JSON(t *testing.T) {
	var out bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &out)

	logger.Debug("hello", "n", 1)

	assert.Contains(t, out.String(), `"msg":"hello"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
