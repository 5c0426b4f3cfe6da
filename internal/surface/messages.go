// ABOUTME: JSON message types exchanged with human surfaces
// ABOUTME: Converts invocation records and settings into their wire shapes

package surface

import (
	"time"

	"github.com/2389/mcp-feedback/internal/config"
	"github.com/2389/mcp-feedback/internal/invocation"
)

// MessageType is the "type" field of a surface message.
type MessageType string

// Inbound message types
const (
	TypeGetToolCalls   MessageType = "getToolCalls"
	TypeSubmitFeedback MessageType = "submitFeedback"
	TypeCancelToolCall MessageType = "cancelToolCall"
	TypeGetSettings    MessageType = "getSettings"
	TypeUpdateSettings MessageType = "updateSettings"
	TypeRestartServer  MessageType = "restartServer"
	TypeUpdateTimeout  MessageType = "updateTimeout"
	TypeGetConfig      MessageType = "getConfig"
)

// Outbound message types
const (
	TypeToolCall          MessageType = "tool-call"
	TypeToolCallUpdated   MessageType = "tool-call-updated"
	TypeToolCalls         MessageType = "toolCalls"
	TypeFeedbackSubmitted MessageType = "feedbackSubmitted"
	TypeToolCallCancelled MessageType = "toolCallCancelled"
	TypePortChanged       MessageType = "portChanged"
	TypeSettings          MessageType = "settings"
	TypeSettingsUpdated   MessageType = "settingsUpdated"
	TypeServerRestarting  MessageType = "serverRestarting"
	TypeServerRestarted   MessageType = "serverRestarted"
	TypeConfig            MessageType = "config"
	TypeError             MessageType = "error"
)

// Inbound is a message from a human surface.
type Inbound struct {
	Type        MessageType             `json:"type"`
	ToolCallID  string                  `json:"toolCallId,omitempty"`
	Feedback    string                  `json:"feedback,omitempty"`
	Attachments []invocation.Attachment `json:"attachments,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	Settings    *SettingsPayload        `json:"settings,omitempty"`
	Timeout     *int64                  `json:"timeout,omitempty"` // milliseconds
}

// Outbound is a message to a human surface.
type Outbound struct {
	Type         MessageType      `json:"type"`
	Data         any              `json:"data,omitempty"`
	Success      *bool            `json:"success,omitempty"`
	ToolCallID   string           `json:"toolCallId,omitempty"`
	Port         int              `json:"port,omitempty"`
	ServerURL    string           `json:"serverUrl,omitempty"`
	MCPServerURL string           `json:"mcpServerUrl,omitempty"`
	Settings     *SettingsPayload `json:"settings,omitempty"`
	Message      string           `json:"message,omitempty"`
	Error        string           `json:"error,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// SettingsPayload is the wire form of config.Settings.
type SettingsPayload struct {
	EnabledTools   map[string]bool `json:"enabledTools"`
	Timeout        int64           `json:"timeout"` // milliseconds
	Port           int             `json:"port"`
	AutoRestart    bool            `json:"autoRestart"`
	EnforceTimeout bool            `json:"enforceTimeout"`
	OrphanPolicy   string          `json:"orphanPolicy,omitempty"`
}

func settingsPayload(s config.Settings) *SettingsPayload {
	enabled := make(map[string]bool, len(s.EnabledTools))
	for name, on := range s.EnabledTools {
		enabled[string(name)] = on
	}
	return &SettingsPayload{
		EnabledTools:   enabled,
		Timeout:        s.Timeout.Milliseconds(),
		Port:           s.Port,
		AutoRestart:    s.AutoRestart,
		EnforceTimeout: s.EnforceTimeout,
		OrphanPolicy:   s.OrphanPolicy,
	}
}

func (p *SettingsPayload) settings() config.Settings {
	enabled := make(map[invocation.ToolName]bool, len(p.EnabledTools))
	for name, on := range p.EnabledTools {
		enabled[invocation.ToolName(name)] = on
	}
	return config.Settings{
		EnabledTools:   enabled,
		Timeout:        time.Duration(p.Timeout) * time.Millisecond,
		Port:           p.Port,
		AutoRestart:    p.AutoRestart,
		EnforceTimeout: p.EnforceTimeout,
		OrphanPolicy:   p.OrphanPolicy,
	}
}

// ToolCall is the wire form of an invocation record.
type ToolCall struct {
	ID           string               `json:"id"`
	ToolName     invocation.ToolName  `json:"toolName"`
	Arguments    invocation.Arguments `json:"arguments"`
	Timestamp    time.Time            `json:"timestamp"`
	Status       invocation.Status    `json:"status"`
	Result       *string              `json:"result,omitempty"`
	UserFeedback string               `json:"userFeedback,omitempty"`
	CancelReason string               `json:"cancelReason,omitempty"`
	ResolvedAt   *time.Time           `json:"resolvedAt,omitempty"`
	MessageHTML  string               `json:"messageHtml,omitempty"`
	DetailsHTML  string               `json:"detailsHtml,omitempty"`
}
