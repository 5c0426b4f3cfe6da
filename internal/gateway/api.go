// ABOUTME: HTTP API handlers for tool calls, the audit ledger and health checks
// ABOUTME: Provides GET /api/tool-calls and GET /api/audit for CLIs and dashboards

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/mcp-feedback/internal/invocation"
	"github.com/2389/mcp-feedback/internal/store"
	"github.com/2389/mcp-feedback/internal/supervisor"
)

// AuditEntryResponse is one entry in the GET /api/audit response.
type AuditEntryResponse struct {
	ID           string          `json:"id"`
	InvocationID string          `json:"invocation_id"`
	Event        string          `json:"event"`
	Tool         string          `json:"tool"`
	Status       string          `json:"status"`
	Arguments    json.RawMessage `json:"arguments"`
	Response     *string         `json:"response,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	Timestamp    string          `json:"timestamp"`
}

// handleListToolCalls handles GET /api/tool-calls requests.
// It returns every retained invocation, most recent first.
// Supports optional ?status=X query parameter to filter by status.
func (g *Gateway) handleListToolCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := invocation.Status(r.URL.Query().Get("status"))
	switch status {
	case "", invocation.StatusPending, invocation.StatusCompleted, invocation.StatusCancelled:
	default:
		g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	records := g.broker.ListAll()
	filtered := make([]invocation.Record, 0, len(records))
	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}
		filtered = append(filtered, rec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g.surface.Renderer().ToolCalls(filtered))
}

// handleListAudit handles GET /api/audit requests.
// Supports ?invocation_id=X and ?limit=N query parameters.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.audit == nil {
		g.sendJSONError(w, http.StatusNotFound, "audit ledger is disabled")
		return
	}

	var filter store.AuditFilter
	q := r.URL.Query()
	if id := q.Get("invocation_id"); id != "" {
		filter.InvocationID = &id
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := g.audit.ListAudit(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing audit entries", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	response := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, AuditEntryResponse{
			ID:           e.ID,
			InvocationID: e.InvocationID,
			Event:        string(e.Event),
			Tool:         string(e.Tool),
			Status:       string(e.Status),
			Arguments:    e.Arguments,
			Response:     e.Response,
			CancelReason: e.CancelReason,
			Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK while the agent endpoint is running and at
// least one tool is enabled.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if state := g.supervisor.State(); state != supervisor.StateRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "agent endpoint %s", state)
		return
	}

	enabled := 0
	for _, on := range g.broker.EnabledTools() {
		if on {
			enabled++
		}
	}
	if enabled == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no tools enabled"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d pending, %d sessions)", g.invocations.PendingCount(), g.mcpServer.Count())
}
