// Package store provides the optional audit ledger using SQLite.
//
// # Overview
//
// The invocation store keeps pending and recent tool calls in memory only.
// When audit.path is configured, every lifecycle transition is also appended
// to an SQLite journal so operators can review who asked what, and how it
// was answered, after the process exits.
//
// The ledger is append-only: each row is one event (created, completed or
// cancelled) for one invocation. Pending invocations are never restored from
// it.
//
// # Schema
//
//	invocation_events(
//	    event_id TEXT PRIMARY KEY,
//	    invocation_id TEXT,
//	    event TEXT,          -- created | completed | cancelled
//	    tool_name TEXT,
//	    status TEXT,
//	    arguments_json TEXT,
//	    response TEXT,       -- human response, completed only
//	    cancel_reason TEXT,  -- cancelled only
//	    ts TEXT              -- RFC 3339, UTC
//	)
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/mcp-feedback/audit.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	entry, err := store.EntryFromRecord(rec)
//	err = s.AppendAudit(ctx, entry)
//
//	entries, err := s.ListAudit(ctx, store.AuditFilter{InvocationID: &id})
package store
