// ABOUTME: Tests for human-surface message dispatch
// ABOUTME: Uses fake broker and controller to check replies for every inbound message type

package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-feedback/internal/config"
	"github.com/2389/mcp-feedback/internal/invocation"
	"github.com/2389/mcp-feedback/internal/observer"
)

type fakeBroker struct {
	mu        sync.Mutex
	records   []invocation.Record
	resolved  map[string]string
	cancelled map[string]string
}

func newFakeBroker(recs ...invocation.Record) *fakeBroker {
	return &fakeBroker{
		records:   recs,
		resolved:  make(map[string]string),
		cancelled: make(map[string]string),
	}
}

func (b *fakeBroker) ListAll() []invocation.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]invocation.Record(nil), b.records...)
}

func (b *fakeBroker) Resolve(id, response string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, done := b.resolved[id]; done || id == "unknown" {
		return false
	}
	b.resolved[id] = response
	return true
}

func (b *fakeBroker) Cancel(id, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "unknown" {
		return false
	}
	b.cancelled[id] = reason
	return true
}

type fakeController struct {
	mu        sync.Mutex
	settings  config.Settings
	updateErr error
	restarts  int
}

func newFakeController() *fakeController {
	return &fakeController{settings: config.Defaults().Settings()}
}

func (c *fakeController) Settings() config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *fakeController) UpdateSettings(_ context.Context, s config.Settings) (config.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return config.Settings{}, c.updateErr
	}
	c.settings = s
	return s, nil
}

func (c *fakeController) Restart(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
	return c.updateErr
}

func (c *fakeController) ServerURL() string {
	return "http://localhost:7423/mcp"
}

func newTestHandler(t *testing.T, b Broker, c Controller) *Handler {
	t.Helper()
	h, err := New(Config{Broker: b, Controller: c})
	require.NoError(t, err)
	return h
}

// collect runs Handle and returns every reply.
func collect(t *testing.T, h *Handler, in Inbound) []Outbound {
	t.Helper()
	var out []Outbound
	h.Handle(t.Context(), in, func(o Outbound) { out = append(out, o) })
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Controller: newFakeController()})
	assert.ErrorIs(t, err, ErrBrokerRequired)

	_, err = New(Config{Broker: newFakeBroker()})
	assert.ErrorIs(t, err, ErrControllerRequired)
}

func TestHandle_GetToolCallsRendersMarkdown(t *testing.T) {
	rec := invocation.Record{
		ID:        "a",
		Tool:      invocation.ToolRequestFeedback,
		Arguments: invocation.FeedbackArgs{Message: "Is **this** right?", Context: "see `main.go`"},
		CreatedAt: time.Now(),
		Status:    invocation.StatusPending,
	}
	h := newTestHandler(t, newFakeBroker(rec), newFakeController())

	out := collect(t, h, Inbound{Type: TypeGetToolCalls})

	require.Len(t, out, 1)
	assert.Equal(t, TypeToolCalls, out[0].Type)
	calls, ok := out[0].Data.([]ToolCall)
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "a", calls[0].ID)
	assert.Contains(t, calls[0].MessageHTML, "<strong>this</strong>")
	assert.Contains(t, calls[0].DetailsHTML, "<code>main.go</code>")
}

func TestHandle_SubmitFeedbackPlainText(t *testing.T) {
	b := newFakeBroker()
	h := newTestHandler(t, b, newFakeController())

	out := collect(t, h, Inbound{Type: TypeSubmitFeedback, ToolCallID: "a", Feedback: "looks good"})

	require.Len(t, out, 1)
	assert.Equal(t, TypeFeedbackSubmitted, out[0].Type)
	require.NotNil(t, out[0].Success)
	assert.True(t, *out[0].Success)
	assert.Equal(t, "a", out[0].ToolCallID)
	assert.Equal(t, "looks good", b.resolved["a"])
}

func TestHandle_SubmitFeedbackWithAttachments(t *testing.T) {
	b := newFakeBroker()
	h := newTestHandler(t, b, newFakeController())

	out := collect(t, h, Inbound{
		Type:        TypeSubmitFeedback,
		ToolCallID:  "a",
		Feedback:    "see screenshot",
		Attachments: []invocation.Attachment{{Name: "shot.png", Type: "image/png", Data: "data:image/png;base64,AQID"}},
	})

	require.Len(t, out, 1)
	assert.True(t, *out[0].Success)
	resp := invocation.DecodeResponse(b.resolved["a"])
	assert.Equal(t, "see screenshot", resp.Text)
	require.Len(t, resp.Attachments, 1)
	assert.Equal(t, int64(3), resp.Attachments[0].Size)
}

func TestHandle_SubmitFeedbackInvalidAttachment(t *testing.T) {
	b := newFakeBroker()
	h := newTestHandler(t, b, newFakeController())

	out := collect(t, h, Inbound{
		Type:        TypeSubmitFeedback,
		ToolCallID:  "a",
		Attachments: []invocation.Attachment{{Name: "x.bin", Data: "%%%"}},
	})

	require.Len(t, out, 1)
	assert.False(t, *out[0].Success)
	assert.Contains(t, out[0].Error, "invalid attachment")
	assert.Empty(t, b.resolved)
}

func TestHandle_SubmitFeedbackConflict(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	first := collect(t, h, Inbound{Type: TypeSubmitFeedback, ToolCallID: "a", Feedback: "one"})
	second := collect(t, h, Inbound{Type: TypeSubmitFeedback, ToolCallID: "a", Feedback: "two"})

	assert.True(t, *first[0].Success)
	assert.False(t, *second[0].Success)
}

func TestHandle_SubmitFeedbackRequiresID(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	out := collect(t, h, Inbound{Type: TypeSubmitFeedback, Feedback: "orphan"})

	require.Len(t, out, 1)
	assert.Equal(t, TypeError, out[0].Type)
}

func TestHandle_CancelToolCall(t *testing.T) {
	b := newFakeBroker()
	h := newTestHandler(t, b, newFakeController())

	out := collect(t, h, Inbound{Type: TypeCancelToolCall, ToolCallID: "a", Reason: "wrong question"})
	missing := collect(t, h, Inbound{Type: TypeCancelToolCall, ToolCallID: "unknown"})

	assert.Equal(t, TypeToolCallCancelled, out[0].Type)
	assert.True(t, *out[0].Success)
	assert.Equal(t, "wrong question", b.cancelled["a"])
	assert.False(t, *missing[0].Success)
}

func TestHandle_GetSettings(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	out := collect(t, h, Inbound{Type: TypeGetSettings})

	require.Len(t, out, 1)
	payload, ok := out[0].Data.(*SettingsPayload)
	require.True(t, ok)
	assert.Equal(t, int64(30000), payload.Timeout)
	assert.Equal(t, 7423, payload.Port)
	assert.Equal(t, map[string]bool{
		"request-user-feedback": true,
		"get-user-confirmation": true,
	}, payload.EnabledTools)
}

func TestHandle_UpdateSettingsWithoutPortChange(t *testing.T) {
	c := newFakeController()
	h := newTestHandler(t, newFakeBroker(), c)

	payload := settingsPayload(c.Settings())
	payload.Timeout = 60000
	payload.EnabledTools["get-user-confirmation"] = false

	out := collect(t, h, Inbound{Type: TypeUpdateSettings, Settings: payload})

	require.Len(t, out, 1)
	assert.Equal(t, TypeSettingsUpdated, out[0].Type)
	assert.True(t, *out[0].Success)
	assert.Equal(t, time.Minute, c.Settings().Timeout)
	assert.False(t, c.Settings().EnabledTools[invocation.ToolConfirmation])
}

func TestHandle_UpdateSettingsWithPortChange(t *testing.T) {
	c := newFakeController()
	h := newTestHandler(t, newFakeBroker(), c)

	payload := settingsPayload(c.Settings())
	payload.Port = 8000

	out := collect(t, h, Inbound{Type: TypeUpdateSettings, Settings: payload})

	require.Len(t, out, 3)
	assert.Equal(t, TypeServerRestarting, out[0].Type)
	assert.Equal(t, TypeServerRestarted, out[1].Type)
	assert.True(t, *out[1].Success)
	assert.Equal(t, "http://localhost:7423/mcp", out[1].ServerURL)
	assert.Equal(t, TypeSettingsUpdated, out[2].Type)
	assert.Equal(t, 8000, out[2].Settings.Port)
}

func TestHandle_UpdateSettingsFailure(t *testing.T) {
	c := newFakeController()
	c.updateErr = errors.New("port must be between 1 and 65535")
	h := newTestHandler(t, newFakeBroker(), c)

	payload := settingsPayload(c.Settings())
	payload.Port = 0

	out := collect(t, h, Inbound{Type: TypeUpdateSettings, Settings: payload})

	require.Len(t, out, 3)
	assert.False(t, *out[1].Success)
	assert.Equal(t, TypeSettingsUpdated, out[2].Type)
	assert.False(t, *out[2].Success)
	assert.Contains(t, out[2].Error, "port must be")
}

func TestHandle_UpdateSettingsMissingPayload(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	out := collect(t, h, Inbound{Type: TypeUpdateSettings})

	require.Len(t, out, 1)
	assert.False(t, *out[0].Success)
}

func TestHandle_RestartServer(t *testing.T) {
	c := newFakeController()
	h := newTestHandler(t, newFakeBroker(), c)

	out := collect(t, h, Inbound{Type: TypeRestartServer})

	require.Len(t, out, 2)
	assert.Equal(t, TypeServerRestarting, out[0].Type)
	assert.Equal(t, TypeServerRestarted, out[1].Type)
	assert.True(t, *out[1].Success)
	assert.Equal(t, 1, c.restarts)
}

func TestHandle_UpdateTimeout(t *testing.T) {
	c := newFakeController()
	h := newTestHandler(t, newFakeBroker(), c)

	ms := int64(5000)
	out := collect(t, h, Inbound{Type: TypeUpdateTimeout, Timeout: &ms})
	bad := collect(t, h, Inbound{Type: TypeUpdateTimeout})

	assert.True(t, *out[0].Success)
	assert.Equal(t, 5*time.Second, c.Settings().Timeout)
	assert.False(t, *bad[0].Success)
}

func TestHandle_GetConfig(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	out := collect(t, h, Inbound{Type: TypeGetConfig})

	require.Len(t, out, 1)
	assert.Equal(t, TypeConfig, out[0].Type)
	assert.Equal(t, "http://localhost:7423/mcp", out[0].MCPServerURL)
}

func TestHandle_UnknownType(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	out := collect(t, h, Inbound{Type: "showMessage"})

	require.Len(t, out, 1)
	assert.Equal(t, TypeError, out[0].Type)
	assert.Contains(t, out[0].Message, "showMessage")
}

func TestEventMessage(t *testing.T) {
	h := newTestHandler(t, newFakeBroker(), newFakeController())

	out, ok := h.eventMessage(observer.Event{
		Type: observer.EventPortChanged,
		Data: observer.PortChange{Port: 8123, ServerURL: "http://localhost:8123/mcp"},
	})
	require.True(t, ok)
	assert.Equal(t, Outbound{Type: TypePortChanged, Port: 8123, ServerURL: "http://localhost:8123/mcp"}, out)

	rec := invocation.Record{ID: "b", Tool: invocation.ToolConfirmation, Arguments: invocation.ConfirmationArgs{Action: "deploy"}, Status: invocation.StatusCompleted}
	out, ok = h.eventMessage(observer.Event{Type: observer.EventToolCallUpdated, Data: rec})
	require.True(t, ok)
	assert.Equal(t, TypeToolCallUpdated, out.Type)

	_, ok = h.eventMessage(observer.Event{Type: observer.EventToolCall, Data: "not a record"})
	assert.False(t, ok)
}
