// ABOUTME: Tool broker that suspends agent tool calls until a human responds
// ABOUTME: Owns the MCP server, tool enablement, timeout and orphan policies

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/mcp-feedback/internal/invocation"
	"github.com/2389/mcp-feedback/internal/observer"
)

// Sentinel errors.
var (
	ErrStoreRequired = errors.New("invocation store is required")
	ErrToolDisabled  = errors.New("tool disabled")
)

// Cancellation reasons recorded on invocations.
const (
	ReasonTimeout      = "timeout"
	ReasonCallerGone   = "caller disconnected"
	ReasonUserCanceled = "cancelled by user"
)

// TimeoutText is returned to the agent when an enforced timeout expires.
const TimeoutText = "Request timed out waiting for user response"

// OrphanPolicy decides what happens to an invocation whose caller went away.
type OrphanPolicy string

const (
	OrphanKeep   OrphanPolicy = "keep"
	OrphanCancel OrphanPolicy = "cancel"
)

// Policy holds the waiting rules applied to new calls.
type Policy struct {
	Timeout        time.Duration
	EnforceTimeout bool
	Orphan         OrphanPolicy
}

// Publisher receives invocation lifecycle events.
type Publisher interface {
	Publish(eventType observer.EventType, data any)
}

// Config holds broker configuration.
type Config struct {
	Store     *invocation.Store
	Publisher Publisher
	Logger    *slog.Logger

	// Name and Version are advertised to agents during initialization.
	Name    string
	Version string

	// EnabledTools maps tool names to their enabled state. Tools missing from
	// the map (or a nil map) are enabled.
	EnabledTools map[invocation.ToolName]bool
	Policy       Policy
}

// Outcome is the result of one tool call.
type Outcome struct {
	Record  invocation.Record
	Text    string
	IsError bool
}

// ToolResult converts the outcome to an MCP tool result.
func (o Outcome) ToolResult() *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: o.Text}},
		IsError: o.IsError,
	}
}

// Broker coordinates agent calls with human responses.
type Broker struct {
	store     *invocation.Store
	publisher Publisher
	logger    *slog.Logger
	server    *sdk.Server
	tools     map[invocation.ToolName]tool

	mu      sync.RWMutex
	enabled map[invocation.ToolName]bool
	policy  Policy
}

// New creates a broker and registers the enabled tools on a fresh MCP server.
func New(cfg Config) (*Broker, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "mcp-feedback"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	policy := cfg.Policy
	if policy.Orphan == "" {
		policy.Orphan = OrphanKeep
	}

	b := &Broker{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger.With("component", "broker"),
		server:    sdk.NewServer(&sdk.Implementation{Name: name, Version: version}, nil),
		tools:     builtinTools(),
		enabled:   make(map[invocation.ToolName]bool),
		policy:    policy,
	}
	b.SetEnabledTools(cfg.EnabledTools)

	return b, nil
}

// Server returns the MCP server carrying the broker's tools.
func (b *Broker) Server() *sdk.Server {
	return b.server
}

// SetEnabledTools registers newly enabled tools and removes disabled ones.
func (b *Broker) SetEnabledTools(enabled map[invocation.ToolName]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range invocation.AllTools {
		want, ok := enabled[name]
		if !ok {
			want = true
		}
		cur, known := b.enabled[name]
		if known && want == cur {
			continue
		}
		if want {
			b.tools[name].register(b.server, b)
			b.logger.Info("tool enabled", "tool", name)
		} else if known {
			b.server.RemoveTools(string(name))
			b.logger.Info("tool disabled", "tool", name)
		}
		b.enabled[name] = want
	}
}

// EnabledTools returns the enabled state of every tool.
func (b *Broker) EnabledTools() map[invocation.ToolName]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.enabled)
}

// SetPolicy replaces the waiting policy. It applies to calls made afterwards.
func (b *Broker) SetPolicy(p Policy) {
	if p.Orphan == "" {
		p.Orphan = OrphanKeep
	}
	b.mu.Lock()
	b.policy = p
	b.mu.Unlock()
}

// Policy returns the current waiting policy.
func (b *Broker) Policy() Policy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.policy
}

// Call records a tool call, publishes it and blocks until the invocation
// leaves pending. A non-nil error means no tool result can be produced: the
// tool is unknown or disabled, or the caller's context ended first.
func (b *Broker) Call(ctx context.Context, args invocation.Arguments) (Outcome, error) {
	name := args.Tool()
	t, ok := b.tools[name]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", invocation.ErrUnknownTool, name)
	}

	b.mu.RLock()
	enabled := b.enabled[name]
	policy := b.policy
	b.mu.RUnlock()
	if !enabled {
		return Outcome{}, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}

	rec := b.store.Create(args)
	b.logger.Info("tool call waiting for human", "id", rec.ID, "tool", name)
	b.publish(observer.EventToolCall, rec)

	waitCtx := ctx
	if policy.EnforceTimeout && policy.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	final, err := b.store.Wait(waitCtx, rec.ID)
	if err != nil {
		final, err = b.abandon(ctx, rec.ID, policy, err)
		if err != nil {
			return Outcome{Record: final}, err
		}
	}

	return t.outcome(final), nil
}

// abandon handles a wait that ended before the invocation did.
func (b *Broker) abandon(ctx context.Context, id string, policy Policy, waitErr error) (invocation.Record, error) {
	var reason string
	switch {
	case errors.Is(waitErr, invocation.ErrNotFound):
		return invocation.Record{}, waitErr
	case ctx.Err() == nil:
		reason = ReasonTimeout
	case policy.Orphan == OrphanCancel:
		reason = ReasonCallerGone
	default:
		b.logger.Info("caller went away, invocation left pending", "id", id)
		return invocation.Record{}, ctx.Err()
	}

	rec, ok := b.cancel(id, reason)
	if !ok {
		// A human answered between the wait ending and the cancel.
		rec, ok = b.store.Get(id)
		if !ok || rec.Pending() {
			return invocation.Record{}, fmt.Errorf("%w: %s", invocation.ErrNotFound, id)
		}
	}
	if reason == ReasonCallerGone {
		return rec, ctx.Err()
	}
	return rec, nil
}

// outcome formats a terminal record for the agent.
func (t tool) outcome(rec invocation.Record) Outcome {
	if rec.Status == invocation.StatusCancelled {
		text := "Request cancelled: " + rec.CancelReason
		if rec.CancelReason == ReasonTimeout {
			text = TimeoutText
		}
		return Outcome{Record: rec, Text: text, IsError: true}
	}
	return Outcome{Record: rec, Text: t.format(rec)}
}

// Resolve completes a pending invocation with a human response. It returns
// false when the invocation is unknown or already finished.
func (b *Broker) Resolve(id, response string) bool {
	rec, ok := b.store.Resolve(id, response)
	if !ok {
		b.logger.Debug("resolution rejected", "id", id)
		return false
	}
	b.logger.Info("invocation resolved", "id", id, "tool", rec.Tool)
	b.publish(observer.EventToolCallUpdated, rec)
	return true
}

// Cancel cancels a pending invocation. An empty reason records that the
// human cancelled it.
func (b *Broker) Cancel(id, reason string) bool {
	if reason == "" {
		reason = ReasonUserCanceled
	}
	_, ok := b.cancel(id, reason)
	return ok
}

func (b *Broker) cancel(id, reason string) (invocation.Record, bool) {
	rec, ok := b.store.Cancel(id, reason)
	if !ok {
		b.logger.Debug("cancellation rejected", "id", id, "reason", reason)
		return invocation.Record{}, false
	}
	b.logger.Info("invocation cancelled", "id", id, "tool", rec.Tool, "reason", reason)
	b.publish(observer.EventToolCallUpdated, rec)
	return rec, true
}

// Get returns a snapshot of one invocation.
func (b *Broker) Get(id string) (invocation.Record, bool) {
	return b.store.Get(id)
}

// ListAll returns every retained invocation, most recent first.
func (b *Broker) ListAll() []invocation.Record {
	return b.store.ListAll()
}

func (b *Broker) publish(eventType observer.EventType, rec invocation.Record) {
	if b.publisher == nil {
		return
	}
	b.publisher.Publish(eventType, rec)
}
