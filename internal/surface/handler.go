// ABOUTME: Dispatch of human-surface messages to the broker and gateway controls
// ABOUTME: Each inbound message produces zero or more outbound replies

package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/mcp-feedback/internal/config"
	"github.com/2389/mcp-feedback/internal/invocation"
	"github.com/2389/mcp-feedback/internal/observer"
)

// Sentinel errors.
var (
	ErrBrokerRequired     = errors.New("broker is required")
	ErrControllerRequired = errors.New("controller is required")
)

// Broker resolves and lists invocations.
type Broker interface {
	ListAll() []invocation.Record
	Resolve(id, response string) bool
	Cancel(id, reason string) bool
}

// Controller exposes the gateway operations a surface may trigger.
type Controller interface {
	Settings() config.Settings
	UpdateSettings(ctx context.Context, s config.Settings) (config.Settings, error)
	Restart(ctx context.Context) error
	ServerURL() string
}

// Subscriber attaches observers to lifecycle events.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan observer.Event, string)
}

// Config holds surface handler configuration.
type Config struct {
	Broker     Broker
	Controller Controller
	Events     Subscriber
	Logger     *slog.Logger

	// AllowedOrigins lists extra browser origins allowed to open the
	// websocket. Loopback origins are always allowed.
	AllowedOrigins []string
}

// Handler serves human surfaces.
type Handler struct {
	broker         Broker
	controller     Controller
	events         Subscriber
	renderer       *Renderer
	logger         *slog.Logger
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

// New creates a surface handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Broker == nil {
		return nil, ErrBrokerRequired
	}
	if cfg.Controller == nil {
		return nil, ErrControllerRequired
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		broker:         cfg.Broker,
		controller:     cfg.Controller,
		events:         cfg.Events,
		renderer:       NewRenderer(),
		logger:         logger.With("component", "surface"),
		allowedOrigins: make(map[string]bool, len(cfg.AllowedOrigins)),
	}
	for _, origin := range cfg.AllowedOrigins {
		h.allowedOrigins[strings.TrimRight(origin, "/")] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

// Renderer returns the Markdown renderer used for tool call payloads.
func (h *Handler) Renderer() *Renderer {
	return h.renderer
}

// Handle processes one inbound message, sending replies through reply.
func (h *Handler) Handle(ctx context.Context, in Inbound, reply func(Outbound)) {
	h.logger.Debug("surface message", "type", in.Type, "tool_call_id", in.ToolCallID)

	switch in.Type {
	case TypeGetToolCalls:
		reply(Outbound{Type: TypeToolCalls, Data: h.renderer.ToolCalls(h.broker.ListAll())})
	case TypeSubmitFeedback:
		h.submitFeedback(in, reply)
	case TypeCancelToolCall:
		h.cancelToolCall(in, reply)
	case TypeGetSettings:
		reply(Outbound{Type: TypeSettings, Data: settingsPayload(h.controller.Settings())})
	case TypeUpdateSettings:
		h.updateSettings(ctx, in, reply)
	case TypeRestartServer:
		h.restartServer(ctx, reply)
	case TypeUpdateTimeout:
		h.updateTimeout(ctx, in, reply)
	case TypeGetConfig:
		reply(Outbound{Type: TypeConfig, MCPServerURL: h.controller.ServerURL()})
	default:
		h.logger.Warn("unknown surface message type", "type", in.Type)
		reply(Outbound{Type: TypeError, Message: fmt.Sprintf("unknown message type: %q", in.Type)})
	}
}

func (h *Handler) submitFeedback(in Inbound, reply func(Outbound)) {
	if in.ToolCallID == "" {
		reply(Outbound{Type: TypeError, Message: "toolCallId is required"})
		return
	}

	fail := func(err error) {
		reply(Outbound{
			Type:       TypeFeedbackSubmitted,
			Success:    boolPtr(false),
			ToolCallID: in.ToolCallID,
			Error:      err.Error(),
		})
	}

	atts, err := ValidateAttachments(in.Attachments)
	if err != nil {
		fail(err)
		return
	}
	response, err := invocation.EncodeResponse(in.Feedback, atts)
	if err != nil {
		fail(err)
		return
	}

	ok := h.broker.Resolve(in.ToolCallID, response)
	reply(Outbound{Type: TypeFeedbackSubmitted, Success: boolPtr(ok), ToolCallID: in.ToolCallID})
}

func (h *Handler) cancelToolCall(in Inbound, reply func(Outbound)) {
	if in.ToolCallID == "" {
		reply(Outbound{Type: TypeError, Message: "toolCallId is required"})
		return
	}
	ok := h.broker.Cancel(in.ToolCallID, in.Reason)
	reply(Outbound{Type: TypeToolCallCancelled, Success: boolPtr(ok), ToolCallID: in.ToolCallID})
}

func (h *Handler) updateSettings(ctx context.Context, in Inbound, reply func(Outbound)) {
	if in.Settings == nil {
		reply(Outbound{Type: TypeSettingsUpdated, Success: boolPtr(false), Error: "settings are required"})
		return
	}

	next := in.Settings.settings()
	portChanged := next.Port != h.controller.Settings().Port
	if portChanged {
		reply(Outbound{Type: TypeServerRestarting, Message: "Restarting server to apply port change"})
	}

	applied, err := h.controller.UpdateSettings(ctx, next)
	if err != nil {
		h.logger.Warn("settings update failed", "error", err)
		if portChanged {
			reply(Outbound{Type: TypeServerRestarted, Success: boolPtr(false), Error: err.Error()})
		}
		reply(Outbound{Type: TypeSettingsUpdated, Success: boolPtr(false), Error: err.Error()})
		return
	}

	if portChanged {
		reply(Outbound{Type: TypeServerRestarted, Success: boolPtr(true), ServerURL: h.controller.ServerURL()})
	}
	reply(Outbound{Type: TypeSettingsUpdated, Success: boolPtr(true), Settings: settingsPayload(applied)})
}

func (h *Handler) restartServer(ctx context.Context, reply func(Outbound)) {
	reply(Outbound{Type: TypeServerRestarting, Message: "Restarting server"})

	if err := h.controller.Restart(ctx); err != nil {
		h.logger.Warn("restart failed", "error", err)
		reply(Outbound{Type: TypeServerRestarted, Success: boolPtr(false), Error: err.Error()})
		return
	}
	reply(Outbound{Type: TypeServerRestarted, Success: boolPtr(true), ServerURL: h.controller.ServerURL()})
}

func (h *Handler) updateTimeout(ctx context.Context, in Inbound, reply func(Outbound)) {
	if in.Timeout == nil || *in.Timeout <= 0 {
		reply(Outbound{Type: TypeSettingsUpdated, Success: boolPtr(false), Error: "timeout must be a positive number of milliseconds"})
		return
	}

	next := h.controller.Settings()
	next.Timeout = time.Duration(*in.Timeout) * time.Millisecond

	applied, err := h.controller.UpdateSettings(ctx, next)
	if err != nil {
		reply(Outbound{Type: TypeSettingsUpdated, Success: boolPtr(false), Error: err.Error()})
		return
	}
	h.logger.Info("timeout updated", "timeout", applied.Timeout)
	reply(Outbound{Type: TypeSettingsUpdated, Success: boolPtr(true), Settings: settingsPayload(applied)})
}

// eventMessage converts a lifecycle event to its outbound message.
func (h *Handler) eventMessage(ev observer.Event) (Outbound, bool) {
	switch ev.Type {
	case observer.EventToolCall, observer.EventToolCallUpdated:
		rec, ok := ev.Data.(invocation.Record)
		if !ok {
			return Outbound{}, false
		}
		msgType := TypeToolCall
		if ev.Type == observer.EventToolCallUpdated {
			msgType = TypeToolCallUpdated
		}
		return Outbound{Type: msgType, Data: h.renderer.ToolCall(rec)}, true
	case observer.EventPortChanged:
		pc, ok := ev.Data.(observer.PortChange)
		if !ok {
			return Outbound{}, false
		}
		return Outbound{Type: TypePortChanged, Port: pc.Port, ServerURL: pc.ServerURL}, true
	default:
		return Outbound{}, false
	}
}

// checkOrigin allows requests without an Origin header, loopback origins,
// same-host origins and configured extras.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.allowedOrigins[strings.TrimRight(origin, "/")] {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
