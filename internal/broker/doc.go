// Package broker turns agent tool calls into human questions and blocks the
// caller until a human answers.
//
// # Tools
//
// Two tools are exposed on the MCP server:
//
//   - request-user-feedback: free-text feedback. The result is the human's
//     response verbatim, or "No feedback provided" when the response is empty.
//   - get-user-confirmation: yes/no confirmation. The result is
//     "Action confirmed by user" when the trimmed response is one of yes, y,
//     confirm or ok (case-insensitive), otherwise "Action rejected by user".
//
// Every call follows the same protocol: create a pending invocation, publish
// a tool-call event, wait until the invocation leaves pending, then format the
// final record into a tool result. Adding a tool means adding an argument type
// to package invocation and a format function here.
//
// # Abandoned and expired calls
//
// When the agent goes away before a human answers, the orphan policy decides
// what happens to the invocation: OrphanKeep leaves it pending so a late
// answer is still recorded, OrphanCancel cancels it with reason
// "caller disconnected".
//
// The configured timeout is advisory unless EnforceTimeout is set. When
// enforced, an invocation still pending after the timeout is cancelled with
// reason "timeout" and the agent receives an error result.
package broker
