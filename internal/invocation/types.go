// ABOUTME: Invocation record types: tool names, statuses and typed arguments
// ABOUTME: Arguments is a tagged union discriminated by the tool name

package invocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ToolName identifies one of the human-input tools.
type ToolName string

const (
	ToolRequestFeedback ToolName = "request-user-feedback"
	ToolConfirmation    ToolName = "get-user-confirmation"
)

// AllTools lists every supported tool in registration order.
var AllTools = []ToolName{ToolRequestFeedback, ToolConfirmation}

// Valid reports whether t is a supported tool.
func (t ToolName) Valid() bool {
	for _, known := range AllTools {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ErrUnknownTool is returned when decoding a record for an unsupported tool.
var ErrUnknownTool = errors.New("unknown tool")

// Arguments is the payload an agent supplied when calling a tool.
// Implementations are FeedbackArgs and ConfirmationArgs.
type Arguments interface {
	Tool() ToolName
}

// FeedbackArgs are the arguments of request-user-feedback.
type FeedbackArgs struct {
	Message  string `json:"message" jsonschema:"The message or question to show to the user"`
	Context  string `json:"context,omitempty" jsonschema:"Additional context for the user"`
	ToolName string `json:"toolName,omitempty" jsonschema:"Name of the tool being called"`
}

// Tool implements Arguments.
func (FeedbackArgs) Tool() ToolName { return ToolRequestFeedback }

// ConfirmationArgs are the arguments of get-user-confirmation.
type ConfirmationArgs struct {
	Action  string `json:"action" jsonschema:"The action that needs user confirmation"`
	Details string `json:"details,omitempty" jsonschema:"Additional details about the action"`
}

// Tool implements Arguments.
func (ConfirmationArgs) Tool() ToolName { return ToolConfirmation }

// Record is a snapshot of one invocation.
type Record struct {
	ID           string     `json:"id"`
	Tool         ToolName   `json:"toolName"`
	Arguments    Arguments  `json:"arguments"`
	CreatedAt    time.Time  `json:"timestamp"`
	Status       Status     `json:"status"`
	Result       *string    `json:"result,omitempty"`
	UserFeedback string     `json:"userFeedback,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

// Pending reports whether the record is still waiting for a human.
func (r Record) Pending() bool {
	return r.Status == StatusPending
}

// clone returns a copy that shares no pointers with r.
func (r Record) clone() Record {
	if r.Result != nil {
		v := *r.Result
		r.Result = &v
	}
	if r.ResolvedAt != nil {
		v := *r.ResolvedAt
		r.ResolvedAt = &v
	}
	return r
}

// UnmarshalJSON decodes a record, choosing the Arguments type from toolName.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var raw struct {
		plain
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record(raw.plain)

	args, err := DecodeArguments(r.Tool, raw.Arguments)
	if err != nil {
		return err
	}
	r.Arguments = args
	return nil
}

// DecodeArguments decodes a raw argument payload for the given tool.
func DecodeArguments(tool ToolName, data json.RawMessage) (Arguments, error) {
	switch tool {
	case ToolRequestFeedback:
		var a FeedbackArgs
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a); err != nil {
				return nil, fmt.Errorf("decoding %s arguments: %w", tool, err)
			}
		}
		return a, nil
	case ToolConfirmation:
		var a ConfirmationArgs
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a); err != nil {
				return nil, fmt.Errorf("decoding %s arguments: %w", tool, err)
			}
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
}
