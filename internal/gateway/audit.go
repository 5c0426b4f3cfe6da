// ABOUTME: Audit writer that journals invocation lifecycle events to SQLite
// ABOUTME: Subscribes to the broadcaster and appends one ledger row per event

package gateway

import (
	"context"
	"time"

	"github.com/2389/mcp-feedback/internal/invocation"
	"github.com/2389/mcp-feedback/internal/observer"
	"github.com/2389/mcp-feedback/internal/store"
)

// auditWriteTimeout bounds a single ledger write.
const auditWriteTimeout = 5 * time.Second

// startAuditor subscribes the audit ledger to lifecycle events. It is a
// no-op when the ledger is disabled. The writer exits when the broadcaster
// is closed.
func (g *Gateway) startAuditor() {
	if g.audit == nil || g.auditDone != nil {
		return
	}

	events, _ := g.events.Subscribe(context.Background())
	g.auditDone = make(chan struct{})

	go func() {
		defer close(g.auditDone)
		for ev := range events {
			g.recordEvent(ev)
		}
	}()
}

// recordEvent appends the ledger row for one event. Events other than
// invocation lifecycle events are ignored.
func (g *Gateway) recordEvent(ev observer.Event) {
	if ev.Type != observer.EventToolCall && ev.Type != observer.EventToolCallUpdated {
		return
	}
	rec, ok := ev.Data.(invocation.Record)
	if !ok {
		return
	}

	entry, err := store.EntryFromRecord(rec)
	if err != nil {
		g.logger.Warn("skipping audit entry", "id", rec.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := g.audit.AppendAudit(ctx, entry); err != nil {
		g.logger.Error("writing audit entry", "id", rec.ID, "event", entry.Event, "error", err)
	}
}
