// ABOUTME: Markdown rendering of tool call messages for human surfaces
// ABOUTME: Uses goldmark with GFM; raw HTML in agent text is never passed through

package surface

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/mcp-feedback/internal/invocation"
)

// Renderer turns agent-supplied Markdown into HTML.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with GitHub-flavored Markdown enabled.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// HTML renders src. Empty input renders to an empty string.
func (r *Renderer) HTML(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return buf.String()
}

// ToolCall converts a record to its wire form with rendered message HTML.
func (r *Renderer) ToolCall(rec invocation.Record) ToolCall {
	tc := ToolCall{
		ID:           rec.ID,
		ToolName:     rec.Tool,
		Arguments:    rec.Arguments,
		Timestamp:    rec.CreatedAt,
		Status:       rec.Status,
		Result:       rec.Result,
		UserFeedback: rec.UserFeedback,
		CancelReason: rec.CancelReason,
		ResolvedAt:   rec.ResolvedAt,
	}

	switch args := rec.Arguments.(type) {
	case invocation.FeedbackArgs:
		tc.MessageHTML = r.HTML(args.Message)
		tc.DetailsHTML = r.HTML(args.Context)
	case invocation.ConfirmationArgs:
		tc.MessageHTML = r.HTML(args.Action)
		tc.DetailsHTML = r.HTML(args.Details)
	}
	return tc
}

// ToolCalls converts records in order.
func (r *Renderer) ToolCalls(recs []invocation.Record) []ToolCall {
	out := make([]ToolCall, len(recs))
	for i, rec := range recs {
		out[i] = r.ToolCall(rec)
	}
	return out
}
