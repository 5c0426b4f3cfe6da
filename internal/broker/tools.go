// ABOUTME: Tool definitions for the human-input tools and their result formatting
// ABOUTME: Each tool pairs a typed argument struct with a function formatting the final record

package broker

import (
	"context"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/mcp-feedback/internal/invocation"
)

const (
	NoFeedbackText = "No feedback provided"
	ConfirmedText  = "Action confirmed by user"
	RejectedText   = "Action rejected by user"
)

// affirmatives are the responses accepted as a confirmation.
var affirmatives = map[string]bool{
	"yes":     true,
	"y":       true,
	"confirm": true,
	"ok":      true,
}

// IsAffirmative reports whether a human response confirms an action. The
// match ignores case only; surrounding whitespace rejects.
func IsAffirmative(response string) bool {
	return affirmatives[strings.ToLower(response)]
}

// tool describes one human-input tool.
type tool struct {
	name        invocation.ToolName
	description string
	// format turns a completed record into the text returned to the agent.
	format func(rec invocation.Record) string
	// register adds the tool to an MCP server, dispatching calls to b.
	register func(s *sdk.Server, b *Broker)
}

// newTool builds a tool whose MCP input schema is derived from A.
func newTool[A invocation.Arguments](name invocation.ToolName, description string, format func(invocation.Record) string) tool {
	t := tool{name: name, description: description, format: format}
	t.register = func(s *sdk.Server, b *Broker) {
		sdk.AddTool(s, &sdk.Tool{
			Name:        string(name),
			Description: description,
		}, func(ctx context.Context, _ *sdk.CallToolRequest, args A) (*sdk.CallToolResult, any, error) {
			out, err := b.Call(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return out.ToolResult(), nil, nil
		})
	}
	return t
}

// builtinTools returns the supported tools keyed by name.
func builtinTools() map[invocation.ToolName]tool {
	return map[invocation.ToolName]tool{
		invocation.ToolRequestFeedback: newTool[invocation.FeedbackArgs](
			invocation.ToolRequestFeedback,
			"Request feedback from the user. Shows the message to a human operator and waits for their written response.",
			formatFeedback,
		),
		invocation.ToolConfirmation: newTool[invocation.ConfirmationArgs](
			invocation.ToolConfirmation,
			"Ask the user to confirm an action. Waits until a human approves or rejects it.",
			formatConfirmation,
		),
	}
}

func formatFeedback(rec invocation.Record) string {
	if rec.Result == nil || *rec.Result == "" {
		return NoFeedbackText
	}
	return *rec.Result
}

func formatConfirmation(rec invocation.Record) string {
	if rec.Result == nil {
		return RejectedText
	}
	if IsAffirmative(invocation.DecodeResponse(*rec.Result).Text) {
		return ConfirmedText
	}
	return RejectedText
}
