// ABOUTME: Audit entries for invocation lifecycle events and their store methods
// ABOUTME: Records what each agent asked and how the human answered

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcp-feedback/internal/invocation"
)

// AuditEvent is the lifecycle transition an entry records.
type AuditEvent string

const (
	AuditCreated   AuditEvent = "created"
	AuditCompleted AuditEvent = "completed"
	AuditCancelled AuditEvent = "cancelled"
)

// AuditEntry represents a single audit ledger entry.
type AuditEntry struct {
	ID           string              // UUID v4
	InvocationID string              // invocation this event belongs to
	Event        AuditEvent          // what happened
	Tool         invocation.ToolName // which tool was called
	Status       invocation.Status   // invocation status after the event
	Arguments    json.RawMessage     // arguments as supplied by the agent
	Response     *string             // human response (completed only)
	CancelReason string              // cancelled only
	Timestamp    time.Time           // when it happened
}

// timestampLayout is fixed-width so ts sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	InvocationID *string              // entries for one invocation
	Tool         *invocation.ToolName // filter by tool
	Event        *AuditEvent          // filter by event type
	Since        *time.Time           // entries at or after this time
	Limit        int                  // max results (default 100, max 1000)
}

// EntryFromRecord builds the audit entry for a record's current state.
func EntryFromRecord(rec invocation.Record) (*AuditEntry, error) {
	args, err := json.Marshal(rec.Arguments)
	if err != nil {
		return nil, fmt.Errorf("marshaling arguments: %w", err)
	}

	e := &AuditEntry{
		InvocationID: rec.ID,
		Tool:         rec.Tool,
		Status:       rec.Status,
		Arguments:    args,
		Timestamp:    rec.CreatedAt,
	}

	switch rec.Status {
	case invocation.StatusPending:
		e.Event = AuditCreated
	case invocation.StatusCompleted:
		e.Event = AuditCompleted
		e.Response = rec.Result
	case invocation.StatusCancelled:
		e.Event = AuditCancelled
		e.CancelReason = rec.CancelReason
	default:
		return nil, fmt.Errorf("unknown status %q", rec.Status)
	}
	if rec.ResolvedAt != nil {
		e.Timestamp = *rec.ResolvedAt
	}
	return e, nil
}

// AppendAudit appends a new entry to the audit ledger.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if len(e.Arguments) == 0 {
		e.Arguments = json.RawMessage("{}")
	}

	var cancelReason *string
	if e.CancelReason != "" {
		cancelReason = &e.CancelReason
	}

	query := `
		INSERT INTO invocation_events (event_id, invocation_id, event, tool_name, status, arguments_json, response, cancel_reason, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.InvocationID,
		string(e.Event),
		string(e.Tool),
		string(e.Status),
		string(e.Arguments),
		e.Response,
		cancelReason,
		e.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit entry",
		"id", e.ID,
		"invocation_id", e.InvocationID,
		"event", e.Event,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const auditQuery = `
	SELECT event_id, invocation_id, event, tool_name, status, arguments_json, response, cancel_reason, ts
	FROM invocation_events
	WHERE (? IS NULL OR invocation_id = ?)
	  AND (? IS NULL OR tool_name = ?)
	  AND (? IS NULL OR event = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAudit returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var toolStr, eventStr, sinceStr *string
	if f.Tool != nil {
		v := string(*f.Tool)
		toolStr = &v
	}
	if f.Event != nil {
		v := string(*f.Event)
		eventStr = &v
	}
	if f.Since != nil {
		v := f.Since.UTC().Format(timestampLayout)
		sinceStr = &v
	}

	rows, err := s.db.QueryContext(ctx, auditQuery,
		f.InvocationID, f.InvocationID,
		toolStr, toolStr,
		eventStr, eventStr,
		sinceStr, sinceStr,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var e AuditEntry
	var eventStr, toolStr, statusStr, argsStr, tsStr string
	var cancelReason *string

	if err := scanner.Scan(
		&e.ID,
		&e.InvocationID,
		&eventStr,
		&toolStr,
		&statusStr,
		&argsStr,
		&e.Response,
		&cancelReason,
		&tsStr,
	); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Event = AuditEvent(eventStr)
	e.Tool = invocation.ToolName(toolStr)
	e.Status = invocation.Status(statusStr)
	e.Arguments = json.RawMessage(argsStr)
	if cancelReason != nil {
		e.CancelReason = *cancelReason
	}

	var err error
	e.Timestamp, err = time.Parse(timestampLayout, tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}
	return e, nil
}
